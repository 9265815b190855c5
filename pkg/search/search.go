// Package search wraps the web search providers behind one interface.
// SerpAPI (Google) is the primary engine; Bing serves as a fallback with
// a slightly different result shape that gets normalized here.
package search

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seked/leadscout/internal/resilience"
)

// Result is a normalized organic search hit.
type Result struct {
	Title   string `json:"title,omitempty"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
	Date    string `json:"date,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Options tune a single search call. Zero values fall back to the
// provider's defaults.
type Options struct {
	Location string
	GL       string
	HL       string
	Num      int
}

// Provider executes one search query.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Unified fronts a primary provider with an optional fallback. All calls
// go through a shared rate limiter so a fallback burst cannot double the
// request rate. Transient primary failures (429, 5xx, network timeouts)
// are retried with backoff before the fallback is consulted.
type Unified struct {
	primary  Provider
	fallback Provider
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
}

// NewUnified creates a Unified searcher. fallback may be nil. A nil
// limiter means unthrottled.
func NewUnified(primary, fallback Provider, limiter *rate.Limiter) *Unified {
	u := &Unified{primary: primary, fallback: fallback, limiter: limiter}
	u.retry = resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: 250 * time.Millisecond,
		OnRetry: func(attempt int, err error) {
			zap.L().Warn("retrying search",
				zap.String("provider", primary.Name()),
				zap.Int("attempt", attempt),
				zap.Error(err))
		},
	}
	return u
}

// Name returns the primary provider's name.
func (u *Unified) Name() string { return u.primary.Name() }

// Search runs the query on the primary provider, retrying transient
// failures, and falls back to the secondary provider when the primary
// gives up.
func (u *Unified) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if err := u.wait(ctx); err != nil {
		return nil, err
	}

	results, err := resilience.DoVal(ctx, u.retry, func(ctx context.Context) ([]Result, error) {
		return u.primary.Search(ctx, query, opts)
	})
	if err == nil {
		return results, nil
	}
	if u.fallback == nil || u.fallback.Name() == u.primary.Name() {
		return nil, err
	}

	zap.L().Warn("primary search provider failed, trying fallback",
		zap.String("primary", u.primary.Name()),
		zap.String("fallback", u.fallback.Name()),
		zap.Error(err))

	if err := u.wait(ctx); err != nil {
		return nil, err
	}
	return u.fallback.Search(ctx, query, opts)
}

func (u *Unified) wait(ctx context.Context) error {
	if u.limiter == nil {
		return nil
	}
	if err := u.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "search: rate limit wait")
	}
	return nil
}
