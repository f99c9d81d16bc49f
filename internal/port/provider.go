package port

import (
	"context"

	"docbench/internal/domain"
)

// Usage is the backend-reported consumption for one run, used for cost
// accounting. Page-based backends fill Pages; token-based backends fill the
// token counts.
type Usage struct {
	Pages        int
	InputTokens  int
	OutputTokens int
}

// Asset is an embedded image a backend returned alongside its text output.
// Bytes may be nil when the backend only referenced the asset without
// supplying its content.
type Asset struct {
	ID          string
	Bytes       []byte
	ContentType string
	Alt         string
}

// TableFragment is a backend-rendered HTML table keyed by id and emission
// index.
type TableFragment struct {
	ID    string
	Index int
	HTML  string
}

// RawResult is a backend-native parse result. Each adapter returns its own
// concrete type; the normalizer maps them to the canonical block model.
type RawResult interface {
	ProviderID() string
	Usage() Usage
	Assets() []Asset
	Tables() []TableFragment
}

// ProviderAdapter owns the wire protocol to one backend: it drives
// submission/polling to completion and returns the backend-native result.
type ProviderAdapter interface {
	Run(ctx context.Context, doc domain.Document) (RawResult, error)
}
