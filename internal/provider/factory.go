package provider

import (
	"fmt"
	"sort"

	"docbench/internal/config"
	"docbench/internal/domain"
	"docbench/internal/port"
)

// Factory is a function that creates a ProviderAdapter from a provider config.
type Factory func(cfg *config.ProviderConfig) (port.ProviderAdapter, error)

// factories is keyed by provider kind, populated by init() in each adapter
// package or explicitly via Register.
var factories = map[domain.ProviderKind]Factory{}

// Register registers an adapter factory for a provider kind.
func Register(kind domain.ProviderKind, factory Factory) {
	factories[kind] = factory
}

// Entry is one resolved provider: its configuration plus a ready adapter.
type Entry struct {
	Config  config.ProviderConfig
	Adapter port.ProviderAdapter
}

// Kind returns the provider kind of the entry.
func (e *Entry) Kind() domain.ProviderKind {
	return domain.ProviderKind(e.Config.Kind)
}

// Registry is the immutable provider table, resolved once at process start
// and indexed by provider id.
type Registry struct {
	entries map[string]*Entry
	order   []string
}

// NewRegistry builds adapters for every configured provider using the
// registered factories.
func NewRegistry(cfgs []config.ProviderConfig) (*Registry, error) {
	r := &Registry{entries: make(map[string]*Entry, len(cfgs))}
	for i := range cfgs {
		cfg := cfgs[i]
		factory, ok := factories[domain.ProviderKind(cfg.Kind)]
		if !ok {
			return nil, fmt.Errorf("provider %s: no factory registered for kind %q", cfg.ID, cfg.Kind)
		}
		adapter, err := factory(&cfg)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", cfg.ID, err)
		}
		if _, dup := r.entries[cfg.ID]; dup {
			return nil, fmt.Errorf("provider %s: duplicate id", cfg.ID)
		}
		r.entries[cfg.ID] = &Entry{Config: cfg, Adapter: adapter}
		r.order = append(r.order, cfg.ID)
	}
	return r, nil
}

// Get returns the entry for a provider id.
func (r *Registry) Get(id string) (*Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, id)
	}
	return e, nil
}

// IDs returns all registered provider ids in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Kinds returns registered kinds, sorted, for diagnostics.
func (r *Registry) Kinds() []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range r.order {
		k := r.entries[id].Config.Kind
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
