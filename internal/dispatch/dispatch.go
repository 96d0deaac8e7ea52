// Package dispatch contains the per-platform publishers. Each platform gets
// its own file with its own request shape behind the uniform Dispatcher
// signature:
//
//   - mailchimp.go: Marketing API campaign create + send, reports for metrics
//   - instagram.go: Graph API two-step media container then publish
//   - facebook.go:  Graph API single page-feed post
//   - linkedin.go:  v2 ugcPosts (no metrics support)
//   - twitter.go:   v2 tweet create, public_metrics for metrics
//
// Dispatchers convert every platform or transport error into a failed
// PublishResult: the queue manager never sees a Go error from a dispatch
// call, so a batch of N items always yields exactly N outcomes.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/blkoutuk/comms-pipeline/internal/credentials"
	"github.com/blkoutuk/comms-pipeline/internal/domain"
	"github.com/blkoutuk/comms-pipeline/internal/metrics"
)

// Dispatcher publishes one content item to its platform.
type Dispatcher interface {
	Platform() domain.Platform
	Publish(ctx context.Context, item *domain.ContentItem) domain.PublishResult
}

// TokenSource supplies platform credentials. *credentials.Store implements
// it; tests substitute doubles.
type TokenSource interface {
	GetToken(ctx context.Context, platform domain.Platform) (*credentials.Token, error)
}

// MetricsFetcher is implemented by dispatchers whose platform exposes
// engagement metrics. FetchMetrics is best-effort: any transport or parse
// failure yields an empty Raw so one platform's outage never aborts a
// sync batch.
type MetricsFetcher interface {
	FetchMetrics(ctx context.Context, externalID string) metrics.Raw
}

// Registry resolves the dispatcher for a platform. The platform set is
// closed; requesting anything outside it is a configuration error.
type Registry struct {
	dispatchers map[domain.Platform]Dispatcher
}

// NewRegistry builds a registry over the given dispatchers.
func NewRegistry(ds ...Dispatcher) *Registry {
	r := &Registry{dispatchers: make(map[domain.Platform]Dispatcher, len(ds))}
	for _, d := range ds {
		r.dispatchers[d.Platform()] = d
	}
	return r
}

// Get returns the dispatcher for the platform, or nil when the platform is
// unknown or not configured.
func (r *Registry) Get(platform domain.Platform) Dispatcher {
	return r.dispatchers[platform]
}

// Fetcher returns the platform's metrics fetcher, or nil when the platform
// does not support metrics (e.g. linkedin) or is not configured.
func (r *Registry) Fetcher(platform domain.Platform) MetricsFetcher {
	if f, ok := r.dispatchers[platform].(MetricsFetcher); ok {
		return f
	}
	return nil
}

// Dispatch publishes the item through its platform's dispatcher and never
// returns an error: unknown platforms become failed results.
func (r *Registry) Dispatch(ctx context.Context, item *domain.ContentItem) domain.PublishResult {
	d := r.Get(item.Platform)
	if d == nil {
		return domain.Failure(fmt.Sprintf("platform %s is not configured", item.Platform))
	}
	return d.Publish(ctx, item)
}

// requireToken fetches a fresh, unexpired token for the platform. The
// precondition runs before any network call; expected absence and storage
// failure both come back as a ready-to-use failure message.
func requireToken(ctx context.Context, store TokenSource, platform domain.Platform) (*credentials.Token, string) {
	tok, err := store.GetToken(ctx, platform)
	if err != nil {
		if errors.Is(err, credentials.ErrNoToken) {
			return nil, fmt.Sprintf("%s: no valid credentials stored", platform)
		}
		return nil, fmt.Sprintf("%s: credential lookup failed: %v", platform, err)
	}
	return tok, ""
}
