// Package preprocess bounds downstream backend cost by truncating multi-page
// PDFs to a fixed page budget before dispatch. Truncation is a cost
// optimization, not a correctness requirement: any structural failure to
// parse or rebuild returns the original document unchanged.
package preprocess

import (
	"bytes"
	"fmt"
	"io"
	"log"

	"codeberg.org/go-pdf/fpdf"
	fpdfgofpdi "codeberg.org/go-pdf/fpdf/contrib/gofpdi"
	"github.com/phpdave11/gofpdi"

	"docbench/internal/domain"
)

// Preprocessor truncates paged documents to at most maxPages pages.
type Preprocessor struct {
	maxPages int
}

// New creates a Preprocessor. maxPages <= 0 disables truncation.
func New(maxPages int) *Preprocessor {
	return &Preprocessor{maxPages: maxPages}
}

// Truncate applies the page budget. Non-paged media pass through untouched.
func (p *Preprocessor) Truncate(doc domain.Document) domain.Document {
	if p.maxPages <= 0 || !doc.MediaType.Paged() {
		return doc
	}

	pages, err := CountPages(doc.Bytes)
	if err != nil {
		log.Printf("preprocess: page count of %s failed, passing document through: %v", doc.Name, err)
		return doc
	}
	if pages <= p.maxPages {
		return doc
	}

	truncated, err := truncatePDF(doc.Bytes, p.maxPages)
	if err != nil {
		log.Printf("preprocess: truncation of %s failed, passing document through: %v", doc.Name, err)
		return doc
	}

	log.Printf("preprocess: truncated %s from %d to %d pages", doc.Name, pages, p.maxPages)
	out := doc
	out.Bytes = truncated
	return out
}

// CountPages reports a PDF's page count without rendering its content. The
// importer panics on malformed input, so failures surface as errors here.
func CountPages(pdfBytes []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing pdf: %v", r)
		}
	}()

	imp := gofpdi.NewImporter()
	var rs io.ReadSeeker = bytes.NewReader(pdfBytes)
	imp.SetSourceStream(&rs)
	return imp.GetNumPages(), nil
}

// truncatePDF rebuilds a document containing only pages [0, maxPages),
// importing each source page as a template onto a same-sized output page so
// page order and content carry over.
func truncatePDF(pdfBytes []byte, maxPages int) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rebuilding pdf: %v", r)
		}
	}()

	pdf := fpdf.New("P", "pt", "A4", "")
	imp := fpdfgofpdi.NewImporter()

	for pageNo := 1; pageNo <= maxPages; pageNo++ {
		var rs io.ReadSeeker = bytes.NewReader(pdfBytes)
		tpl := imp.ImportPageFromStream(pdf, &rs, pageNo, "/MediaBox")

		w, h := 595.28, 841.89 // A4 fallback
		if sizes := imp.GetPageSizes(); sizes != nil {
			if box, ok := sizes[pageNo]["/MediaBox"]; ok && box["w"] > 0 && box["h"] > 0 {
				w, h = box["w"], box["h"]
			}
		}

		pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
		imp.UseImportedTemplate(pdf, tpl, 0, 0, w, h)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing pdf: %w", err)
	}
	return buf.Bytes(), nil
}
