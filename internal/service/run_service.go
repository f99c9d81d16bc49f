package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"docbench/internal/assets"
	"docbench/internal/domain"
	"docbench/internal/normalize"
	"docbench/internal/preprocess"
	"docbench/internal/pricing"
	"docbench/internal/provider"
)

// RunState tracks one benchmark run through its lifecycle.
type RunState string

const (
	RunIdle    RunState = "idle"
	RunRunning RunState = "running"
	RunSettled RunState = "settled"
)

// RunService fans a single document out to the selected providers
// concurrently and collects per-provider outcomes. Each provider's outcome is
// independent: a failure never aborts sibling work.
type RunService struct {
	registry *provider.Registry
	pre      *preprocess.Preprocessor
	inliner  *assets.Inliner
}

// NewRunService creates a RunService.
func NewRunService(registry *provider.Registry, pre *preprocess.Preprocessor, inliner *assets.Inliner) *RunService {
	return &RunService{registry: registry, pre: pre, inliner: inliner}
}

// ProviderInfo describes one registry entry for listing.
type ProviderInfo struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Model string `json:"model,omitempty"`
}

// Providers lists the registry in registration order.
func (s *RunService) Providers() []ProviderInfo {
	var out []ProviderInfo
	for _, id := range s.registry.IDs() {
		e, err := s.registry.Get(id)
		if err != nil {
			continue
		}
		out = append(out, ProviderInfo{ID: id, Kind: e.Config.Kind, Model: e.Config.Model})
	}
	return out
}

// RunAll dispatches the document to every selected provider. Vision-class
// providers are excluded up front for paged input and reported as Skipped
// without ever invoking their adapter. The returned outcomes follow the
// requested provider order; completion order across providers is arbitrary.
func (s *RunService) RunAll(ctx context.Context, doc domain.Document, providerIDs []string) ([]domain.ProviderOutcome, error) {
	if err := validateDocument(doc); err != nil {
		return nil, err
	}
	if len(providerIDs) == 0 {
		return nil, fmt.Errorf("no providers selected")
	}

	entries := make([]*provider.Entry, len(providerIDs))
	for i, id := range providerIDs {
		e, err := s.registry.Get(id)
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}

	state := RunRunning
	doc = s.pre.Truncate(doc)

	outcomes := make([]domain.ProviderOutcome, len(entries))
	var wg sync.WaitGroup
	for i, entry := range entries {
		if entry.Kind() == domain.KindVision && doc.MediaType.Paged() {
			outcomes[i] = domain.ProviderOutcome{
				ProviderID: entry.Config.ID,
				Status:     domain.OutcomeSkipped,
				Reason:     "vision models do not accept paged documents; submit an image instead",
			}
			continue
		}

		wg.Add(1)
		go func(i int, entry *provider.Entry) {
			defer wg.Done()
			outcomes[i] = s.runOne(ctx, entry, doc)
		}(i, entry)
	}
	wg.Wait()

	state = RunSettled
	log.Printf("run: %s for %d providers, document %q", state, len(entries), doc.Name)
	return outcomes, nil
}

// RunProvider dispatches the document to a single provider. This is the
// per-provider entry point the embedding layer calls.
func (s *RunService) RunProvider(ctx context.Context, doc domain.Document, providerID string) (domain.ProviderOutcome, error) {
	outcomes, err := s.RunAll(ctx, doc, []string{providerID})
	if err != nil {
		return domain.ProviderOutcome{}, err
	}
	return outcomes[0], nil
}

// runOne drives one adapter to a terminal outcome. Elapsed time is measured
// wall-clock from acceptance to terminal result, inclusive of polling delay,
// and is reported even on failure.
func (s *RunService) runOne(ctx context.Context, entry *provider.Entry, doc domain.Document) domain.ProviderOutcome {
	id := entry.Config.ID
	start := time.Now()

	raw, err := entry.Adapter.Run(ctx, doc)
	elapsed := time.Since(start)
	if err != nil {
		log.Printf("run: provider %s failed after %s: %v", id, elapsed.Round(time.Millisecond), err)
		return domain.ProviderOutcome{
			ProviderID: id,
			Status:     domain.OutcomeError,
			Error:      sanitizeError(id, err),
			Stats:      &domain.ParseStats{ElapsedSeconds: elapsed.Seconds()},
		}
	}

	outputs := normalize.Outputs(raw)
	s.inliner.Inline(ctx, outputs, raw.Assets(), raw.Tables())
	stats := pricing.Stats(elapsed, raw.Usage(), &entry.Config)

	return domain.ProviderOutcome{
		ProviderID: id,
		Status:     domain.OutcomeComplete,
		Outputs:    outputs,
		Stats:      &stats,
	}
}

func validateDocument(doc domain.Document) error {
	if len(doc.Bytes) == 0 && doc.SourceURL == "" {
		return domain.ErrEmptyDocument
	}
	if !domain.AllowedMediaTypes[doc.MediaType] {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedMediaType, doc.MediaType)
	}
	return nil
}

// sanitizeError converts an adapter failure into the user-visible message.
func sanitizeError(providerID string, err error) string {
	var perr *provider.ProviderError
	if errors.As(err, &perr) {
		return perr.UserMessage()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Sprintf("%s: request canceled", providerID)
	}
	return fmt.Sprintf("%s: provider failed", providerID)
}
