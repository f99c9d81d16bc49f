// Package ocrbatch implements the adapter for asynchronous batch OCR services
// (Mistral OCR-style): upload the file, resolve a signed URL for it, submit an
// OCR job, then poll until the job settles. The result payload embeds raster
// images as base64 blobs with corner-style pixel boxes.
package ocrbatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"docbench/internal/config"
	"docbench/internal/domain"
	"docbench/internal/port"
	"docbench/internal/provider"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxAttempts  = 60
	defaultTimeout      = 30 * time.Second
)

func init() {
	provider.Register(domain.KindOCRBatch, func(cfg *config.ProviderConfig) (port.ProviderAdapter, error) {
		return NewAdapter(cfg), nil
	})
}

// Adapter implements port.ProviderAdapter for a batch OCR backend.
type Adapter struct {
	providerID  string
	apiKey      string
	endpoint    string
	model       string
	client      *http.Client
	interval    time.Duration
	maxAttempts int
	sleeper     provider.Sleeper
}

// NewAdapter creates a batch OCR adapter from a provider config.
func NewAdapter(cfg *config.ProviderConfig) *Adapter {
	return NewAdapterWithEndpoint(cfg, cfg.Endpoint)
}

// NewAdapterWithEndpoint creates an adapter pointing at a custom API endpoint
// (for testing).
func NewAdapterWithEndpoint(cfg *config.ProviderConfig, endpoint string) *Adapter {
	interval := cfg.PollInterval()
	if interval == 0 {
		interval = defaultPollInterval
	}
	attempts := cfg.PollMaxAttempts
	if attempts == 0 {
		attempts = defaultMaxAttempts
	}
	timeout := cfg.Timeout()
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Adapter{
		providerID:  cfg.ID,
		apiKey:      cfg.APIKey,
		endpoint:    endpoint,
		model:       cfg.Model,
		client:      &http.Client{Timeout: timeout},
		interval:    interval,
		maxAttempts: attempts,
		sleeper:     provider.RealSleeper{},
	}
}

// Result is the backend-native output of a batch OCR run.
type Result struct {
	Provider  string
	Pages     []Page
	UsageInfo UsageInfo
}

// Page is one OCR'd page. Markdown references embedded images by id.
type Page struct {
	Index      int        `json:"index"`
	Markdown   string     `json:"markdown"`
	Images     []Image    `json:"images"`
	Dimensions Dimensions `json:"dimensions"`
}

// Dimensions reports the page raster size in pixels.
type Dimensions struct {
	DPI    int `json:"dpi"`
	Height int `json:"height"`
	Width  int `json:"width"`
}

// Image is an extracted raster region with a corner-style pixel box and its
// content as a base64 blob.
type Image struct {
	ID           string `json:"id"`
	TopLeftX     int    `json:"top_left_x"`
	TopLeftY     int    `json:"top_left_y"`
	BottomRightX int    `json:"bottom_right_x"`
	BottomRightY int    `json:"bottom_right_y"`
	ImageBase64  string `json:"image_base64"`
}

// UsageInfo is the backend-reported consumption.
type UsageInfo struct {
	PagesProcessed int  `json:"pages_processed"`
	DocSizeBytes   *int `json:"doc_size_bytes"`
}

func (r *Result) ProviderID() string { return r.Provider }

func (r *Result) Usage() port.Usage {
	return port.Usage{Pages: r.UsageInfo.PagesProcessed}
}

// Assets decodes the embedded base64 images. Blobs that fail to decode are
// returned without bytes so downstream inlining degrades to a placeholder.
func (r *Result) Assets() []port.Asset {
	var out []port.Asset
	for _, p := range r.Pages {
		for _, img := range p.Images {
			asset := port.Asset{ID: img.ID, Alt: img.ID}
			if img.ImageBase64 != "" {
				data := img.ImageBase64
				contentType := "image/jpeg"
				// Blobs may arrive as bare base64 or as a full data URI.
				if strings.HasPrefix(data, "data:") {
					if rest, found := strings.CutPrefix(data, "data:"); found {
						if mediatype, payload, ok := strings.Cut(rest, ";base64,"); ok {
							contentType = mediatype
							data = payload
						}
					}
				}
				if decoded, err := base64.StdEncoding.DecodeString(data); err == nil {
					asset.Bytes = decoded
					asset.ContentType = contentType
				}
			}
			out = append(out, asset)
		}
	}
	return out
}

func (r *Result) Tables() []port.TableFragment { return nil }

// Run drives upload, signed-URL resolution, job submission, and polling to
// completion.
func (a *Adapter) Run(ctx context.Context, doc domain.Document) (port.RawResult, error) {
	if a.apiKey == "" {
		return nil, provider.NewAuthMissing(a.providerID)
	}

	docURL := doc.SourceURL
	if docURL == "" {
		fileID, err := a.uploadFile(ctx, doc)
		if err != nil {
			return nil, err
		}
		docURL, err = a.signedURL(ctx, fileID)
		if err != nil {
			return nil, err
		}
	}

	jobID, err := a.submitJob(ctx, docURL)
	if err != nil {
		return nil, err
	}

	var result *Result
	job := provider.NewJob(a.providerID, jobID)
	err = job.Poll(ctx, a.interval, a.maxAttempts, a.sleeper, func(ctx context.Context) (bool, error) {
		r, done, err := a.checkJob(ctx, jobID)
		if done {
			result = r
		}
		return done, err
	})
	if err != nil {
		if errors.Is(err, provider.ErrAttemptsExhausted) {
			return nil, provider.NewUpstreamTimeout(a.providerID, a.maxAttempts)
		}
		return nil, err
	}
	return result, nil
}

func (a *Adapter) uploadFile(ctx context.Context, doc domain.Document) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("purpose", "ocr"); err != nil {
		return "", fmt.Errorf("writing purpose field: %w", err)
	}
	fw, err := mw.CreateFormFile("file", doc.Name)
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := fw.Write(doc.Bytes); err != nil {
		return "", fmt.Errorf("writing form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}

	respBody, err := a.do(ctx, http.MethodPost, a.endpoint+"/files", &body, mw.FormDataContentType())
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &provider.ProviderError{Provider: a.providerID, Kind: domain.ErrUpstreamError,
			Err: fmt.Errorf("unmarshaling upload response: %w", err)}
	}
	if resp.ID == "" {
		return "", provider.NewUpstreamError(a.providerID, "upload response carried no file id")
	}
	return resp.ID, nil
}

func (a *Adapter) signedURL(ctx context.Context, fileID string) (string, error) {
	respBody, err := a.do(ctx, http.MethodGet, a.endpoint+"/files/"+fileID+"/url", nil, "")
	if err != nil {
		return "", err
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &provider.ProviderError{Provider: a.providerID, Kind: domain.ErrUpstreamError,
			Err: fmt.Errorf("unmarshaling signed url response: %w", err)}
	}
	if resp.URL == "" {
		return "", provider.NewUpstreamError(a.providerID, "signed url response was empty")
	}
	return resp.URL, nil
}

func (a *Adapter) submitJob(ctx context.Context, docURL string) (string, error) {
	reqBody := map[string]interface{}{
		"model": a.model,
		"document": map[string]interface{}{
			"type":         "document_url",
			"document_url": docURL,
		},
		"include_image_base64": true,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling ocr request: %w", err)
	}

	respBody, err := a.do(ctx, http.MethodPost, a.endpoint+"/ocr/jobs", bytes.NewReader(bodyBytes), "application/json")
	if err != nil {
		return "", err
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &provider.ProviderError{Provider: a.providerID, Kind: domain.ErrUpstreamError,
			Err: fmt.Errorf("unmarshaling ocr submit response: %w", err)}
	}
	if resp.ID == "" {
		return "", provider.NewUpstreamError(a.providerID, "ocr submit response carried no job id")
	}
	return resp.ID, nil
}

func (a *Adapter) checkJob(ctx context.Context, jobID string) (*Result, bool, error) {
	respBody, err := a.do(ctx, http.MethodGet, a.endpoint+"/ocr/jobs/"+jobID, nil, "")
	if err != nil {
		return nil, false, err
	}

	var resp struct {
		Status    string    `json:"status"`
		Error     string    `json:"error"`
		Pages     []Page    `json:"pages"`
		UsageInfo UsageInfo `json:"usage_info"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, false, &provider.ProviderError{Provider: a.providerID, Kind: domain.ErrUpstreamError,
			Err: fmt.Errorf("unmarshaling job status: %w", err)}
	}

	switch resp.Status {
	case "success":
		return &Result{Provider: a.providerID, Pages: resp.Pages, UsageInfo: resp.UsageInfo}, true, nil
	case "error", "failed":
		msg := resp.Error
		if msg == "" {
			msg = "ocr job failed without a message"
		}
		return nil, false, provider.NewUpstreamError(a.providerID, msg)
	default:
		return nil, false, nil
	}
}

func (a *Adapter) do(ctx context.Context, method, url string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ProviderError{Provider: a.providerID, Kind: domain.ErrUpstreamError, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.ProviderError{Provider: a.providerID, Kind: domain.ErrUpstreamError,
			Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, provider.NewUpstreamRejected(a.providerID, resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 500 {
		return nil, provider.NewUpstreamError(a.providerID,
			fmt.Sprintf("status %d: %s", resp.StatusCode, respBody))
	}
	return respBody, nil
}
