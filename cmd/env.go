package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seked/leadscout/internal/enrich"
	"github.com/seked/leadscout/internal/intent"
	"github.com/seked/leadscout/internal/pipeline"
	"github.com/seked/leadscout/internal/store"
	anthropicpkg "github.com/seked/leadscout/pkg/anthropic"
	"github.com/seked/leadscout/pkg/search"
)

// env bundles the wired store and pipeline for one command invocation.
type env struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return store.NewSQLite(cfg.Store.SQLitePath)
	}
}

func buildSearchProvider(name string) search.Provider {
	if name == "bing" {
		return search.NewBing(cfg.Search.BingKey,
			search.WithBingBaseURL(cfg.Search.BingEndpoint),
			search.WithBingMarket(cfg.Search.Market),
			search.WithBingFreshness(cfg.Search.Freshness),
		)
	}
	return search.NewSerpAPI(cfg.Search.SerpAPIKey)
}

func initSearch() search.Provider {
	primary := buildSearchProvider(cfg.Search.Provider)

	var fallback search.Provider
	if cfg.Search.Fallback != "" && cfg.Search.Fallback != cfg.Search.Provider {
		fallback = buildSearchProvider(cfg.Search.Fallback)
	}

	var limiter *rate.Limiter
	if cfg.Search.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Search.RatePerSecond), cfg.Search.RateBurst)
	}

	return search.NewUnified(primary, fallback, limiter)
}

func initEnricher() *enrich.Enricher {
	if cfg.Anthropic.Key == "" {
		zap.L().Warn("anthropic key missing, intent escalation disabled")
		return enrich.New(nil)
	}

	ai := anthropicpkg.NewClient(cfg.Anthropic.Key)
	escalator := intent.NewEscalator(ai,
		cfg.Anthropic.FastModel,
		cfg.Anthropic.SmartModel,
		time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second,
	)
	return enrich.New(escalator)
}

// initPipeline validates the config for the given mode, opens and
// migrates the store, and wires the full pipeline.
func initPipeline(ctx context.Context, mode string) (*env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	p := pipeline.New(cfg, st, initSearch(), initEnricher(), nil)

	return &env{Store: st, Pipeline: p}, nil
}
