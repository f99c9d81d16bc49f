package ocrbatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbench/internal/config"
	"docbench/internal/domain"
	"docbench/internal/port"
)

type noopSleeper struct{ count atomic.Int32 }

func (s *noopSleeper) Sleep(context.Context, time.Duration) error {
	s.count.Add(1)
	return nil
}

func testConfig() *config.ProviderConfig {
	return &config.ProviderConfig{
		ID:               "mistral-ocr",
		Kind:             "ocr_batch",
		APIKey:           "test-key",
		Model:            "mistral-ocr-latest",
		PollIntervalSecs: 1,
		PollMaxAttempts:  5,
	}
}

func testDoc() domain.Document {
	return domain.Document{Name: "doc.pdf", MediaType: domain.MediaTypePDF, Bytes: []byte("%PDF-1.4")}
}

func TestRun_UploadSubmitPoll(t *testing.T) {
	var pollCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/files":
			_, _ = w.Write([]byte(`{"id": "file-1"}`))
		case "/files/file-1/url":
			_, _ = w.Write([]byte(`{"url": "https://signed.example.com/file-1"}`))
		case "/ocr/jobs":
			var req map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "mistral-ocr-latest", req["model"])
			doc := req["document"].(map[string]interface{})
			assert.Equal(t, "https://signed.example.com/file-1", doc["document_url"])
			_, _ = w.Write([]byte(`{"id": "ocr-1", "status": "queued"}`))
		case "/ocr/jobs/ocr-1":
			if pollCalls.Add(1) < 2 {
				_, _ = w.Write([]byte(`{"status": "processing"}`))
				return
			}
			_, _ = w.Write([]byte(`{
				"status": "success",
				"pages": [{
					"index": 0,
					"markdown": "![img-0.jpeg](img-0.jpeg)",
					"dimensions": {"dpi": 200, "width": 1000, "height": 500},
					"images": [{
						"id": "img-0.jpeg",
						"top_left_x": 100, "top_left_y": 50,
						"bottom_right_x": 300, "bottom_right_y": 150,
						"image_base64": "aGVsbG8="
					}]
				}],
				"usage_info": {"pages_processed": 1}
			}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := NewAdapterWithEndpoint(testConfig(), srv.URL)
	a.sleeper = &noopSleeper{}

	raw, err := a.Run(context.Background(), testDoc())
	require.NoError(t, err)

	result, ok := raw.(*Result)
	require.True(t, ok)
	assert.Equal(t, "mistral-ocr", result.ProviderID())
	assert.Equal(t, port.Usage{Pages: 1}, result.Usage())
	require.Len(t, result.Pages, 1)
	assert.Equal(t, 1000, result.Pages[0].Dimensions.Width)
}

func TestRun_SourceURLSkipsUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ocr/jobs":
			var req map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			doc := req["document"].(map[string]interface{})
			assert.Equal(t, "https://example.com/remote.pdf", doc["document_url"])
			_, _ = w.Write([]byte(`{"id": "ocr-2"}`))
		case "/ocr/jobs/ocr-2":
			_, _ = w.Write([]byte(`{"status": "success", "pages": [], "usage_info": {"pages_processed": 1}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := NewAdapterWithEndpoint(testConfig(), srv.URL)
	a.sleeper = &noopSleeper{}

	doc := testDoc()
	doc.SourceURL = "https://example.com/remote.pdf"
	_, err := a.Run(context.Background(), doc)
	require.NoError(t, err)
}

func TestRun_JobFailureSurfacesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files":
			_, _ = w.Write([]byte(`{"id": "file-1"}`))
		case "/files/file-1/url":
			_, _ = w.Write([]byte(`{"url": "https://signed.example.com/file-1"}`))
		case "/ocr/jobs":
			_, _ = w.Write([]byte(`{"id": "ocr-3"}`))
		case "/ocr/jobs/ocr-3":
			_, _ = w.Write([]byte(`{"status": "failed", "error": "unreadable scan"}`))
		}
	}))
	defer srv.Close()

	a := NewAdapterWithEndpoint(testConfig(), srv.URL)
	a.sleeper = &noopSleeper{}

	_, err := a.Run(context.Background(), testDoc())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamError)
	assert.Contains(t, err.Error(), "unreadable scan")
}

func TestRun_MissingAPIKey(t *testing.T) {
	a := NewAdapterWithEndpoint(testConfig(), "http://unused")
	a.apiKey = ""

	_, err := a.Run(context.Background(), testDoc())
	assert.ErrorIs(t, err, domain.ErrAuthMissing)
}

func TestResultAssets_DecodeVariants(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("image-bytes"))
	r := &Result{
		Provider: "mistral-ocr",
		Pages: []Page{{
			Images: []Image{
				{ID: "bare.jpeg", ImageBase64: payload},
				{ID: "uri.png", ImageBase64: "data:image/png;base64," + payload},
				{ID: "broken.jpeg", ImageBase64: "!!not-base64!!"},
				{ID: "empty.jpeg"},
			},
		}},
	}

	assets := r.Assets()
	require.Len(t, assets, 4)

	assert.Equal(t, []byte("image-bytes"), assets[0].Bytes)
	assert.Equal(t, "image/jpeg", assets[0].ContentType)

	assert.Equal(t, []byte("image-bytes"), assets[1].Bytes)
	assert.Equal(t, "image/png", assets[1].ContentType)

	// Undecodable or absent blobs keep the reference but carry no bytes.
	assert.Nil(t, assets[2].Bytes)
	assert.Nil(t, assets[3].Bytes)
}
