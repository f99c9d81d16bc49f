package domain

// Document is one accepted input payload. It is immutable once accepted and
// owned by the run that created it.
type Document struct {
	Name      string
	MediaType MediaType
	Bytes     []byte

	// SourceURL, when set, points at a remotely hosted document. Adapters that
	// accept URLs submit it directly instead of uploading Bytes.
	SourceURL string
}

// UnitBBox is a rectangle expressed as fractions of page width/height.
type UnitBBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// PageDimensions reports a source page's size in backend-native units (pixels
// or points).
type PageDimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CanonicalBlock is the unified structured-content unit produced by
// normalization. BBox, when present, is always in unit-square coordinates.
type CanonicalBlock struct {
	ID         string    `json:"id"`
	Type       BlockType `json:"type"`
	Content    string    `json:"content"`
	BBox       *UnitBBox `json:"bbox,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	PageIndex  int       `json:"page_index"`
}

// ParseOutputs is the normalized result of one provider for one document.
// Markdown is always populated on success; HTML and Blocks are
// backend-dependent.
type ParseOutputs struct {
	Markdown       string           `json:"markdown"`
	HTML           string           `json:"html,omitempty"`
	Blocks         []CanonicalBlock `json:"blocks,omitempty"`
	PageDimensions []PageDimensions `json:"page_dimensions,omitempty"`
}

// ParseStats carries normalized accounting for one provider run.
type ParseStats struct {
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Cost           float64 `json:"cost"`
	Tokens         int     `json:"tokens"`
	Pages          int     `json:"pages,omitempty"`
}

// ProviderOutcome is the terminal result of one provider within a run. Exactly
// one of Outputs/Error/Reason is meaningful depending on Status.
type ProviderOutcome struct {
	ProviderID string        `json:"provider_id"`
	Status     OutcomeStatus `json:"status"`
	Outputs    *ParseOutputs `json:"outputs,omitempty"`
	Stats      *ParseStats   `json:"stats,omitempty"`
	Error      string        `json:"error,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}
