// Package layoutparse implements the adapter for asynchronous layout-extraction
// services with a job queue (LlamaParse-style): submit the document, poll the
// job status on a fixed interval, then fetch the markdown and structured JSON
// result representations.
package layoutparse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"docbench/internal/config"
	"docbench/internal/domain"
	"docbench/internal/port"
	"docbench/internal/provider"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxAttempts  = 30
	defaultTimeout      = 30 * time.Second
)

func init() {
	provider.Register(domain.KindLayoutParser, func(cfg *config.ProviderConfig) (port.ProviderAdapter, error) {
		return NewAdapter(cfg), nil
	})
}

// Adapter implements port.ProviderAdapter for a polling layout parser.
type Adapter struct {
	providerID  string
	apiKey      string
	endpoint    string
	client      *http.Client
	interval    time.Duration
	maxAttempts int
	sleeper     provider.Sleeper
}

// NewAdapter creates a layout-parser adapter from a provider config.
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
		client:      &http.Client{Timeout: timeout},
		interval:    interval,
		maxAttempts: attempts,
		sleeper:     provider.RealSleeper{},
	}
}

// Result is the backend-native output of a layout parser run.
type Result struct {
	Provider string
	JobID    string
	Markdown string
	// Pages is nil when the structured JSON fetch failed; the run still
	// succeeds with blocks absent.
	Pages []Page
}

// Page is one parsed page of the structured JSON result.
type Page struct {
	Page   int     `json:"page"`
	Text   string  `json:"text"`
	Md     string  `json:"md"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Items  []Item  `json:"items"`
	Images []Image `json:"images"`
	Status string  `json:"status"`
}

// Item is one layout item. Items may nest; children carry independent
// geometry.
type Item struct {
	Type     string     `json:"type"`
	Lvl      int        `json:"lvl,omitempty"`
	Value    string     `json:"value,omitempty"`
	Md       string     `json:"md"`
	BBox     *BBox      `json:"bBox,omitempty"`
	Rows     [][]string `json:"rows,omitempty"`
	Children []Item     `json:"items,omitempty"`
}

// BBox is the backend's box convention: unit fractions of the page.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Image is an image reference on a page. The backend reports geometry and a
// name but does not embed bytes.
type Image struct {
	Name           string  `json:"name"`
	Height         float64 `json:"height"`
	Width          float64 `json:"width"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	OriginalWidth  float64 `json:"original_width"`
	OriginalHeight float64 `json:"original_height"`
	Type           string  `json:"type"`
}

func (r *Result) ProviderID() string { return r.Provider }

func (r *Result) Usage() port.Usage {
	return port.Usage{Pages: len(r.Pages)}
}

// Assets returns the referenced images. The backend never supplies bytes, so
// unresolved references degrade to placeholders downstream.
func (r *Result) Assets() []port.Asset {
	var out []port.Asset
	for _, p := range r.Pages {
		for _, img := range p.Images {
			out = append(out, port.Asset{ID: img.Name, Alt: img.Name})
		}
	}
	return out
}

func (r *Result) Tables() []port.TableFragment { return nil }

// Run drives the submit/poll/fetch protocol to completion.
func (a *Adapter) Run(ctx context.Context, doc domain.Document) (port.RawResult, error) {
	if a.apiKey == "" {
		return nil, provider.NewAuthMissing(a.providerID)
	}

	jobID, err := a.submit(ctx, doc)
	if err != nil {
		return nil, err
	}

	job := provider.NewJob(a.providerID, jobID)
	err = job.Poll(ctx, a.interval, a.maxAttempts, a.sleeper, func(ctx context.Context) (bool, error) {
		return a.checkStatus(ctx, jobID)
	})
	if err != nil {
		if errors.Is(err, provider.ErrAttemptsExhausted) {
			return nil, provider.NewUpstreamTimeout(a.providerID, a.maxAttempts)
		}
		return nil, err
	}

	return a.fetchResults(ctx, jobID)
}

func (a *Adapter) submit(ctx context.Context, doc domain.Document) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
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

	respBody, err := a.do(ctx, http.MethodPost, a.endpoint+"/upload", &body, mw.FormDataContentType())
	if err != nil {
		return "", err
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &provider.ProviderError{Provider: a.providerID, Kind: domain.ErrUpstreamError,
			Err: fmt.Errorf("unmarshaling submit response: %w", err)}
	}
	if resp.ID == "" {
		return "", provider.NewUpstreamError(a.providerID, "submit response carried no job id")
	}
	return resp.ID, nil
}

func (a *Adapter) checkStatus(ctx context.Context, jobID string) (bool, error) {
	respBody, err := a.do(ctx, http.MethodGet, a.endpoint+"/job/"+jobID, nil, "")
	if err != nil {
		return false, err
	}

	var resp struct {
		Status  string `json:"status"`
		Message string `json:"error_message"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return false, &provider.ProviderError{Provider: a.providerID, Kind: domain.ErrUpstreamError,
			Err: fmt.Errorf("unmarshaling status response: %w", err)}
	}

	switch resp.Status {
	case "SUCCESS", "PARTIAL_SUCCESS":
		// Partial success still carries usable output.
		return true, nil
	case "ERROR", "CANCELLED":
		msg := resp.Message
		if msg == "" {
			msg = "job failed without a message"
		}
		return false, provider.NewUpstreamError(a.providerID, msg)
	default:
		return false, nil
	}
}

// fetchResults retrieves the markdown and structured JSON representations
// concurrently. The markdown fetch is required; a structured fetch failure
// degrades to a result without blocks.
func (a *Adapter) fetchResults(ctx context.Context, jobID string) (port.RawResult, error) {
	resultBase := a.endpoint + "/job/" + jobID + "/result"

	var (
		wg        sync.WaitGroup
		markdown  string
		mdErr     error
		pages     []Page
		structErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		respBody, err := a.do(ctx, http.MethodGet, resultBase+"/markdown", nil, "")
		if err != nil {
			mdErr = err
			return
		}
		var resp struct {
			Markdown string `json:"markdown"`
		}
		if err := json.Unmarshal(respBody, &resp); err != nil {
			mdErr = &provider.ProviderError{Provider: a.providerID, Kind: domain.ErrUpstreamError,
				Err: fmt.Errorf("unmarshaling markdown result: %w", err)}
			return
		}
		markdown = resp.Markdown
	}()
	go func() {
		defer wg.Done()
		respBody, err := a.do(ctx, http.MethodGet, resultBase+"/json", nil, "")
		if err != nil {
			structErr = err
			return
		}
		var resp struct {
			Pages []Page `json:"pages"`
		}
		if err := json.Unmarshal(respBody, &resp); err != nil {
			structErr = err
			return
		}
		pages = resp.Pages
	}()
	wg.Wait()

	if mdErr != nil {
		return nil, mdErr
	}
	if structErr != nil {
		log.Printf("layoutparse: %s job %s: structured result fetch failed, returning markdown only: %v",
			a.providerID, jobID, structErr)
		pages = nil
	}

	return &Result{Provider: a.providerID, JobID: jobID, Markdown: markdown, Pages: pages}, nil
}

// do performs one HTTP call and classifies non-2xx responses into the error
// taxonomy.
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
