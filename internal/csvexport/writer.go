// Package csvexport writes benchmark run results as CSV for spreadsheet
// consumption.
package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"docbench/internal/domain"
)

// BOM is the UTF-8 byte order mark, written first for Excel compatibility on
// Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// columns defines the CSV header row.
var columns = []string{
	"Document",
	"Provider",
	"Status",
	"Elapsed (s)",
	"Cost (USD)",
	"Pages",
	"Tokens",
	"Blocks",
	"Error",
}

// WriteRun writes one benchmark run, one row per provider outcome.
func WriteRun(w io.Writer, documentName string, outcomes []domain.ProviderOutcome) error {
	if _, err := w.Write(BOM); err != nil {
		return fmt.Errorf("writing BOM: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, o := range outcomes {
		if err := cw.Write(row(documentName, o)); err != nil {
			return fmt.Errorf("writing row for %s: %w", o.ProviderID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func row(documentName string, o domain.ProviderOutcome) []string {
	elapsed, cost, pages, tokens := "", "", "", ""
	if o.Stats != nil {
		elapsed = strconv.FormatFloat(o.Stats.ElapsedSeconds, 'f', 2, 64)
		cost = strconv.FormatFloat(o.Stats.Cost, 'f', 6, 64)
		if o.Stats.Pages > 0 {
			pages = strconv.Itoa(o.Stats.Pages)
		}
		if o.Stats.Tokens > 0 {
			tokens = strconv.Itoa(o.Stats.Tokens)
		}
	}

	blocks := ""
	if o.Outputs != nil && len(o.Outputs.Blocks) > 0 {
		blocks = strconv.Itoa(len(o.Outputs.Blocks))
	}

	errMsg := o.Error
	if o.Status == domain.OutcomeSkipped {
		errMsg = o.Reason
	}

	return []string{
		documentName,
		o.ProviderID,
		string(o.Status),
		elapsed,
		cost,
		pages,
		tokens,
		blocks,
		errMsg,
	}
}
