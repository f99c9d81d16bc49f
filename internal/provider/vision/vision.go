// Package vision implements the degenerate adapter for vision-capable chat
// models: one Chat Completions call with the image inlined as a data URI, raw
// markdown back, no blocks and no polling. Token usage feeds per-token
// pricing.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"docbench/internal/config"
	"docbench/internal/domain"
	"docbench/internal/port"
	"docbench/internal/provider"
)

const defaultTimeout = 120 * time.Second

const transcriptionPrompt = "Convert this document image to markdown. " +
	"Reproduce all text content faithfully, render tables as markdown tables, " +
	"and preserve the reading order. Return only the markdown."

func init() {
	provider.Register(domain.KindVision, func(cfg *config.ProviderConfig) (port.ProviderAdapter, error) {
		return NewAdapter(cfg), nil
	})
}

// Adapter implements port.ProviderAdapter using an OpenAI-compatible Chat
// Completions API.
type Adapter struct {
	providerID string
	apiKey     string
	model      string
	endpoint   string
	client     *http.Client
}

// NewAdapter creates a vision-model adapter from a provider config.
func NewAdapter(cfg *config.ProviderConfig) *Adapter {
	return NewAdapterWithEndpoint(cfg, cfg.Endpoint)
}

// NewAdapterWithEndpoint creates an adapter pointing at a custom API endpoint
// (for testing).
func NewAdapterWithEndpoint(cfg *config.ProviderConfig, endpoint string) *Adapter {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	timeout := cfg.Timeout()
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Adapter{
		providerID: cfg.ID,
		apiKey:     cfg.APIKey,
		model:      model,
		endpoint:   endpoint,
		client:     &http.Client{Timeout: timeout},
	}
}

// Result is the raw markdown a vision model produced, with its token usage.
type Result struct {
	Provider     string
	Markdown     string
	Model        string
	InputTokens  int
	OutputTokens int
}

func (r *Result) ProviderID() string { return r.Provider }

func (r *Result) Usage() port.Usage {
	return port.Usage{InputTokens: r.InputTokens, OutputTokens: r.OutputTokens}
}

func (r *Result) Assets() []port.Asset         { return nil }
func (r *Result) Tables() []port.TableFragment { return nil }

// Run performs the single model call. Paged documents are rejected before any
// network traffic; the orchestrator normally filters them out earlier.
func (a *Adapter) Run(ctx context.Context, doc domain.Document) (port.RawResult, error) {
	if a.apiKey == "" {
		return nil, provider.NewAuthMissing(a.providerID)
	}
	if !doc.MediaType.IsImage() {
		return nil, provider.NewUpstreamError(a.providerID,
			fmt.Sprintf("vision models accept images only, got %s", doc.MediaType))
	}

	encoded := base64.StdEncoding.EncodeToString(doc.Bytes)
	dataURI := fmt.Sprintf("data:%s;base64,%s", doc.MediaType, encoded)

	reqBody := map[string]interface{}{
		"model":      a.model,
		"max_tokens": 16384,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type": "image_url",
						"image_url": map[string]interface{}{
							"url": dataURI,
						},
					},
					{
						"type": "text",
						"text": transcriptionPrompt,
					},
				},
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

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

// apiResponse models the Chat Completions response.
type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *Adapter) parseResponse(body []byte) (*Result, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ProviderError{Provider: a.providerID, Kind: domain.ErrUpstreamError,
			Err: fmt.Errorf("unmarshaling response: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return nil, provider.NewUpstreamError(a.providerID, "empty response from API: no choices")
	}
	if resp.Choices[0].FinishReason == "length" {
		return nil, provider.NewUpstreamError(a.providerID,
			"output truncated (finish_reason: length): response exceeded output token limit")
	}
	return &Result{
		Provider:     a.providerID,
		Markdown:     resp.Choices[0].Message.Content,
		Model:        a.model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
