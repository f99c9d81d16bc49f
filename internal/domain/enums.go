package domain

// MediaType is the declared MIME type of a submitted document.
type MediaType string

const (
	MediaTypePNG  MediaType = "image/png"
	MediaTypeJPEG MediaType = "image/jpeg"
	MediaTypeWEBP MediaType = "image/webp"
	MediaTypeGIF  MediaType = "image/gif"
	MediaTypePDF  MediaType = "application/pdf"
)

// AllowedMediaTypes is the closed set of accepted document media types.
var AllowedMediaTypes = map[MediaType]bool{
	MediaTypePNG:  true,
	MediaTypeJPEG: true,
	MediaTypeWEBP: true,
	MediaTypeGIF:  true,
	MediaTypePDF:  true,
}

// AllowedExtensions maps file extensions (without dot) to MediaType.
var AllowedExtensions = map[string]MediaType{
	"png":  MediaTypePNG,
	"jpg":  MediaTypeJPEG,
	"jpeg": MediaTypeJPEG,
	"webp": MediaTypeWEBP,
	"gif":  MediaTypeGIF,
	"pdf":  MediaTypePDF,
}

// Paged reports whether the media type carries multiple pages.
func (m MediaType) Paged() bool {
	return m == MediaTypePDF
}

// IsImage reports whether the media type is a raster image.
func (m MediaType) IsImage() bool {
	return m != MediaTypePDF && AllowedMediaTypes[m]
}

// ProviderKind classifies a backend by its wire protocol.
type ProviderKind string

const (
	KindLayoutParser ProviderKind = "layout"    // async layout extraction, submit + poll
	KindOCRBatch     ProviderKind = "ocr_batch" // async batch OCR, submit + poll
	KindSyncOCR      ProviderKind = "sync_ocr"  // single request/response OCR
	KindVision       ProviderKind = "vision"    // vision-capable chat model, single call
)

// JobState tracks one provider job through its lifecycle.
type JobState string

const (
	JobSubmitted JobState = "submitted"
	JobPolling   JobState = "polling"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobTimedOut  JobState = "timed_out"
)

// OutcomeStatus is the terminal status of one provider within a run.
type OutcomeStatus string

const (
	OutcomeComplete OutcomeStatus = "complete"
	OutcomeError    OutcomeStatus = "error"
	OutcomeSkipped  OutcomeStatus = "skipped"
)

// BlockType is the canonical structured-content block type.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockTable    BlockType = "table"
	BlockFigure   BlockType = "figure"
	BlockTitle    BlockType = "title"
	BlockList     BlockType = "list"
	BlockHeader   BlockType = "header"
	BlockFooter   BlockType = "footer"
	BlockCode     BlockType = "code"
	BlockEquation BlockType = "equation"
	BlockUnknown  BlockType = "unknown"
)
