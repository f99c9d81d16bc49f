package provider

import (
	"fmt"

	"docbench/internal/domain"
)

// ProviderError wraps a backend failure with its taxonomy sentinel so callers
// can match on errors.Is(err, domain.ErrUpstreamTimeout) etc.
type ProviderError struct {
	Provider string
	Kind     error // one of the domain.ErrAuthMissing/ErrUpstream* sentinels
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Kind
}

// UserMessage returns a sanitized message suitable for surfacing to callers.
// Backend messages are passed through only when they identify the failure;
// transport noise stays in logs.
func (e *ProviderError) UserMessage() string {
	switch e.Kind {
	case domain.ErrAuthMissing:
		return fmt.Sprintf("%s: API key not configured", e.Provider)
	case domain.ErrUpstreamTimeout:
		return fmt.Sprintf("%s: processing timed out", e.Provider)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Provider, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
}

// NewAuthMissing reports an absent backend credential.
func NewAuthMissing(provider string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: domain.ErrAuthMissing}
}

// NewUpstreamRejected reports a 4xx response from the backend.
func NewUpstreamRejected(provider string, status int, body string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     domain.ErrUpstreamRejected,
		Err:      fmt.Errorf("status %d: %s", status, truncate(body, 300)),
	}
}

// NewUpstreamTimeout reports an exhausted polling budget.
func NewUpstreamTimeout(provider string, attempts int) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     domain.ErrUpstreamTimeout,
		Err:      fmt.Errorf("no terminal status after %d polls", attempts),
	}
}

// NewUpstreamError reports an explicit processing failure from the backend.
func NewUpstreamError(provider, message string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     domain.ErrUpstreamError,
		Err:      fmt.Errorf("%s", truncate(message, 300)),
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
