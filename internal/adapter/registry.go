package adapter

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
)

// ErrNoAdapter is returned when neither a slug registration nor a method factory matches a source.
var ErrNoAdapter = errors.New("no adapter registered")

// Factory builds the generic adapter for a source of a given method.
type Factory func(src *domain.Source) (Adapter, error)

// Registry maps source slugs to hand-written adapters and integration methods to
// generic ones. Slug registrations win.
type Registry struct {
	mu       sync.RWMutex
	bySlug   map[string]Adapter
	byMethod map[domain.IntegrationMethod]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		bySlug:   make(map[string]Adapter),
		byMethod: make(map[domain.IntegrationMethod]Factory),
	}
}

// Register binds a hand-written adapter to a source slug.
func (r *Registry) Register(slug string, a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySlug[slug]; exists {
		return fmt.Errorf("adapter for %q already registered", slug)
	}
	r.bySlug[slug] = a
	return nil
}

// RegisterMethod sets the factory used for sources of method m.
func (r *Registry) RegisterMethod(m domain.IntegrationMethod, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byMethod[m] = f
}

// Resolve returns the adapter for src.
func (r *Registry) Resolve(src *domain.Source) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.bySlug[src.Slug]
	f, hasFactory := r.byMethod[src.IntegrationMethod]
	r.mu.RUnlock()

	if ok {
		return a, nil
	}
	if !hasFactory {
		return nil, fmt.Errorf("%w: source %q (method %s)", ErrNoAdapter, src.Slug, src.IntegrationMethod)
	}
	a, err := f(src)
	if err != nil {
		return nil, fmt.Errorf("build %s adapter for %q: %w", src.IntegrationMethod, src.Slug, err)
	}
	return a, nil
}

// Slugs lists the slugs with hand-written adapters.
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.bySlug))
	for s := range r.bySlug {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
