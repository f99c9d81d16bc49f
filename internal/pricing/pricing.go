// Package pricing converts backend-reported usage into normalized cost and
// timing stats. Two models exist: per-page for layout/OCR backends and
// per-million-token for vision models.
package pricing

import (
	"log"
	"time"

	"docbench/internal/config"
	"docbench/internal/domain"
	"docbench/internal/port"
)

// FallbackPricePerPage is charged when a provider has no configured price.
// Cost is never silently reported as free.
const FallbackPricePerPage = 0.001

// PageCost prices a page-based run. A missing processed-page count bills as
// one page.
func PageCost(pages int, pricePerPage float64) float64 {
	if pages < 1 {
		pages = 1
	}
	return float64(pages) * pricePerPage
}

// TokenCost prices a token-based run with per-million-token rates.
func TokenCost(inputTokens, outputTokens int, priceInPerMTok, priceOutPerMTok float64) float64 {
	return float64(inputTokens)/1e6*priceInPerMTok + float64(outputTokens)/1e6*priceOutPerMTok
}

// Stats builds the normalized stats for one provider run.
func Stats(elapsed time.Duration, usage port.Usage, cfg *config.ProviderConfig) domain.ParseStats {
	stats := domain.ParseStats{
		ElapsedSeconds: elapsed.Seconds(),
		Tokens:         usage.InputTokens + usage.OutputTokens,
	}

	if domain.ProviderKind(cfg.Kind) == domain.KindVision {
		stats.Cost = TokenCost(usage.InputTokens, usage.OutputTokens, cfg.PriceInPerMTok, cfg.PriceOutPerMTok)
		return stats
	}

	pages := usage.Pages
	if pages < 1 {
		pages = 1
	}
	rate := cfg.PricePerPage
	if rate <= 0 {
		log.Printf("pricing: no per-page price configured for %s, using fallback %g", cfg.ID, FallbackPricePerPage)
		rate = FallbackPricePerPage
	}
	stats.Pages = pages
	stats.Cost = PageCost(pages, rate)
	return stats
}
