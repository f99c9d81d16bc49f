package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbench/internal/config"
	"docbench/internal/domain"
	"docbench/internal/port"
)

func testConfig() *config.ProviderConfig {
	return &config.ProviderConfig{ID: "gpt-4o", Kind: "vision", APIKey: "test-key", Model: "gpt-4o"}
}

func testImage() domain.Document {
	return domain.Document{Name: "scan.png", MediaType: domain.MediaTypePNG, Bytes: []byte{0x89, 0x50}}
}

func TestRun_TranscribesImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req["model"])

		messages := req["messages"].([]interface{})
		content := messages[0].(map[string]interface{})["content"].([]interface{})
		imagePart := content[0].(map[string]interface{})
		url := imagePart["image_url"].(map[string]interface{})["url"].(string)
		assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "# Transcribed"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1000, "completion_tokens": 500}
		}`))
	}))
	defer srv.Close()

	a := NewAdapterWithEndpoint(testConfig(), srv.URL)

	raw, err := a.Run(context.Background(), testImage())
	require.NoError(t, err)

	result, ok := raw.(*Result)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", result.ProviderID())
	assert.Equal(t, "# Transcribed", result.Markdown)
	assert.Equal(t, port.Usage{InputTokens: 1000, OutputTokens: 500}, result.Usage())
	assert.Nil(t, result.Assets())
	assert.Nil(t, result.Tables())
}

func TestRun_RejectsPagedDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no HTTP call expected")
	}))
	defer srv.Close()

	a := NewAdapterWithEndpoint(testConfig(), srv.URL)
	doc := domain.Document{Name: "doc.pdf", MediaType: domain.MediaTypePDF, Bytes: []byte("%PDF")}

	_, err := a.Run(context.Background(), doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamError)
	assert.Contains(t, err.Error(), "images only")
}

func TestRun_TruncatedOutputIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "partial..."}, "finish_reason": "length"}],
			"usage": {"prompt_tokens": 1000, "completion_tokens": 16384}
		}`))
	}))
	defer srv.Close()

	a := NewAdapterWithEndpoint(testConfig(), srv.URL)

	_, err := a.Run(context.Background(), testImage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finish_reason: length")
}

func TestRun_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	a := NewAdapterWithEndpoint(testConfig(), srv.URL)

	_, err := a.Run(context.Background(), testImage())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamError)
}

func TestRun_MissingAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = ""
	a := NewAdapterWithEndpoint(cfg, "http://unused")

	_, err := a.Run(context.Background(), testImage())
	assert.ErrorIs(t, err, domain.ErrAuthMissing)
}

func TestRun_RateLimitRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limit exceeded"}}`))
	}))
	defer srv.Close()

	a := NewAdapterWithEndpoint(testConfig(), srv.URL)

	_, err := a.Run(context.Background(), testImage())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamRejected)
}
