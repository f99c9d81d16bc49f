// Package syncocr implements the adapter for synchronous OCR backends
// (Upstage document-parse style): one request, one response, no polling. The
// backend accepts either a file payload or a remote URL and returns markdown,
// HTML, and structured elements with polygon coordinates.
package syncocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"docbench/internal/config"
	"docbench/internal/domain"
	"docbench/internal/port"
	"docbench/internal/provider"
)

const defaultTimeout = 120 * time.Second

// imageExtensions routes recognized raster formats to the image channel;
// everything else goes to the generic-document channel.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
}

func init() {
	provider.Register(domain.KindSyncOCR, func(cfg *config.ProviderConfig) (port.ProviderAdapter, error) {
		return NewAdapter(cfg), nil
	})
}

// Adapter implements port.ProviderAdapter for a synchronous OCR backend.
type Adapter struct {
	providerID string
	apiKey     string
	endpoint   string
	client     *http.Client
}

// NewAdapter creates a synchronous OCR adapter from a provider config.
func NewAdapter(cfg *config.ProviderConfig) *Adapter {
	return NewAdapterWithEndpoint(cfg, cfg.Endpoint)
}

// NewAdapterWithEndpoint creates an adapter pointing at a custom API endpoint
// (for testing).
func NewAdapterWithEndpoint(cfg *config.ProviderConfig, endpoint string) *Adapter {
	timeout := cfg.Timeout()
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Adapter{
		providerID: cfg.ID,
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		client:     &http.Client{Timeout: timeout},
	}
}

// Result is the backend-native output of a synchronous OCR call.
type Result struct {
	Provider   string
	Content    Content   `json:"content"`
	Elements   []Element `json:"elements"`
	Metadata   Metadata  `json:"metadata"`
	UsagePages int
}

// Content carries the rendered representations of the whole document or of a
// single element.
type Content struct {
	HTML     string `json:"html"`
	Markdown string `json:"markdown"`
	Text     string `json:"text"`
}

// Element is one structured block with a polygon bounding region.
type Element struct {
	ID          int     `json:"id"`
	Category    string  `json:"category"`
	Content     Content `json:"content"`
	Page        int     `json:"page"`
	Coordinates []Point `json:"coordinates"`
}

// Point is one polygon vertex in page pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Metadata carries per-page dimension reports.
type Metadata struct {
	Pages []PageMeta `json:"pages"`
}

// PageMeta is one page's reported size.
type PageMeta struct {
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r *Result) ProviderID() string { return r.Provider }

func (r *Result) Usage() port.Usage {
	return port.Usage{Pages: r.UsagePages}
}

func (r *Result) Assets() []port.Asset { return nil }

// Tables returns the backend-rendered HTML fragments for table elements,
// keyed by element id and emission index.
func (r *Result) Tables() []port.TableFragment {
	var out []port.TableFragment
	for _, el := range r.Elements {
		if el.Category != "table" || el.Content.HTML == "" {
			continue
		}
		out = append(out, port.TableFragment{
			ID:    strconv.Itoa(el.ID),
			Index: len(out),
			HTML:  el.Content.HTML,
		})
	}
	return out
}

// Run performs the single request/response exchange.
func (a *Adapter) Run(ctx context.Context, doc domain.Document) (port.RawResult, error) {
	if a.apiKey == "" {
		return nil, provider.NewAuthMissing(a.providerID)
	}

	var (
		body        io.Reader
		contentType string
		err         error
	)
	if doc.SourceURL != "" {
		body, contentType, err = a.urlRequest(doc)
	} else {
		body, contentType, err = a.fileRequest(doc)
	}
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", contentType)

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

	return a.parseResponse(respBody)
}

// Channel classifies an input name for the backend's two submission channels.
func Channel(name string) string {
	if imageExtensions[strings.ToLower(path.Ext(name))] {
		return "image"
	}
	return "document"
}

func (a *Adapter) fileRequest(doc domain.Document) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(Channel(doc.Name), doc.Name)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := fw.Write(doc.Bytes); err != nil {
		return nil, "", fmt.Errorf("writing form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

func (a *Adapter) urlRequest(doc domain.Document) (io.Reader, string, error) {
	reqBody := map[string]string{Channel(doc.SourceURL): doc.SourceURL}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, "", fmt.Errorf("marshaling url request: %w", err)
	}
	return bytes.NewReader(bodyBytes), "application/json", nil
}

func (a *Adapter) parseResponse(body []byte) (*Result, error) {
	var resp struct {
		Content  Content   `json:"content"`
		Elements []Element `json:"elements"`
		Metadata Metadata  `json:"metadata"`
		Usage    struct {
			Pages int `json:"pages"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ProviderError{Provider: a.providerID, Kind: domain.ErrUpstreamError,
			Err: fmt.Errorf("unmarshaling response: %w", err)}
	}
	return &Result{
		Provider:   a.providerID,
		Content:    resp.Content,
		Elements:   resp.Elements,
		Metadata:   resp.Metadata,
		UsagePages: resp.Usage.Pages,
	}, nil
}
