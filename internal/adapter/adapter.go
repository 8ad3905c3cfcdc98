// Package adapter defines the extraction contract every source implements and the
// registry that maps sources to their adapters.
package adapter

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks . Adapter

import (
	"context"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/fetch"
)

// Adapter turns one source into event candidates.
//
// Implementations must not write to the record store and must return promptly when
// ctx is done. They may rate-limit their own requests. A *crawlerr.Error with kind
// rate_limited may be returned together with the candidates gathered so far.
type Adapter interface {
	Extract(ctx context.Context, src *domain.Source) ([]domain.RawEventCandidate, error)
}

// BrowserBacked is implemented by adapters that drive a headless browser, so the
// orchestrator can bound them separately from lightweight adapters.
type BrowserBacked interface {
	UsesBrowser() bool
}

// RequiresRenderer reports whether running a for src needs a renderer slot.
func RequiresRenderer(a Adapter, src *domain.Source) bool {
	if b, ok := a.(BrowserBacked); ok {
		return b.UsesBrowser()
	}
	return src.IntegrationMethod.RequiresRenderer()
}

// Func adapts a function to the Adapter interface.
type Func func(ctx context.Context, src *domain.Source) ([]domain.RawEventCandidate, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, src *domain.Source) ([]domain.RawEventCandidate, error) {
	return f(ctx, src)
}

// Fetcher retrieves a URL through the shared polite client.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Response, error)
}
