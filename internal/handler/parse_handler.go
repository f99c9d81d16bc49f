package handler

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"docbench/internal/config"
	"docbench/internal/csvexport"
	"docbench/internal/domain"
	"docbench/internal/service"
)

// ParseHandler exposes the benchmark run over HTTP.
type ParseHandler struct {
	svc *service.RunService
	cfg *config.ParseConfig
}

// NewParseHandler creates a ParseHandler.
func NewParseHandler(svc *service.RunService, cfg *config.ParseConfig) *ParseHandler {
	return &ParseHandler{svc: svc, cfg: cfg}
}

// parseResult is the response payload for one run.
type parseResult struct {
	Document string                   `json:"document"`
	Outcomes []domain.ProviderOutcome `json:"outcomes"`
}

// Parse accepts a multipart document (field "file") plus one or more
// "providers" fields and runs the selected providers against it.
func (h *ParseHandler) Parse(c *gin.Context) {
	doc, err := h.readDocument(c)
	if err != nil {
		HandleError(c, err)
		return
	}

	providerIDs := c.PostFormArray("providers")
	if len(providerIDs) == 0 {
		RespondError(c, http.StatusBadRequest, "NO_PROVIDERS", "at least one providers field is required")
		return
	}

	outcomes, err := h.svc.RunAll(c.Request.Context(), doc, providerIDs)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, parseResult{Document: doc.Name, Outcomes: outcomes})
}

// Export re-serializes a finished run as CSV. The client posts back the run
// payload it received from Parse.
func (h *ParseHandler) Export(c *gin.Context) {
	var run parseResult
	if err := c.ShouldBindJSON(&run); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_BODY", "body must be a parse result payload")
		return
	}

	filename := strings.TrimSuffix(path.Base(run.Document), path.Ext(run.Document))
	if filename == "" || filename == "." {
		filename = "benchmark"
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-results.csv"`, filename))
	c.Status(http.StatusOK)

	if err := csvexport.WriteRun(c.Writer, run.Document, run.Outcomes); err != nil {
		// Headers are already out; nothing sensible left to send.
		_ = c.Error(err)
	}
}

// Providers lists the configured provider registry.
func (h *ParseHandler) Providers(c *gin.Context) {
	RespondOK(c, h.svc.Providers())
}

// readDocument extracts and validates the uploaded document.
func (h *ParseHandler) readDocument(c *gin.Context) (domain.Document, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return domain.Document{}, domain.ErrEmptyDocument
	}

	maxBytes := h.cfg.MaxFileSizeMB * 1024 * 1024
	if maxBytes > 0 && fileHeader.Size > maxBytes {
		return domain.Document{}, domain.ErrFileTooLarge
	}

	mediaType, ok := sniffMediaType(fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedMediaType, fileHeader.Filename)
	}

	f, err := fileHeader.Open()
	if err != nil {
		return domain.Document{}, fmt.Errorf("opening upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.Document{}, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) == 0 {
		return domain.Document{}, domain.ErrEmptyDocument
	}

	return domain.Document{
		Name:      path.Base(fileHeader.Filename),
		MediaType: mediaType,
		Bytes:     data,
	}, nil
}

// sniffMediaType resolves the media type from the filename extension first,
// then from the declared content type.
func sniffMediaType(filename, contentType string) (domain.MediaType, bool) {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if mt, ok := domain.AllowedExtensions[ext]; ok {
		return mt, true
	}
	if contentType != "" {
		if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
			mt := domain.MediaType(parsed)
			if domain.AllowedMediaTypes[mt] {
				return mt, true
			}
		}
	}
	return "", false
}
