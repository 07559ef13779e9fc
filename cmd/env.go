package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kitchen-mate/clipper/internal/authz"
	"github.com/kitchen-mate/clipper/internal/extract"
	"github.com/kitchen-mate/clipper/internal/fetch"
	"github.com/kitchen-mate/clipper/internal/pipeline"
	"github.com/kitchen-mate/clipper/internal/resilience"
	"github.com/kitchen-mate/clipper/internal/store"
	"github.com/kitchen-mate/clipper/internal/upload"
	anthropicpkg "github.com/kitchen-mate/clipper/pkg/anthropic"
)

// clipperEnv holds the initialized store and pipeline shared by the clip,
// recipes and serve commands.
type clipperEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Limits   upload.Limits
}

// Close releases resources held by the environment.
func (e *clipperEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up the store, extraction backends and pipeline. The tier
// resolver decides capability gating; CLI commands run as pro since the
// operator supplies their own API key. Callers should defer env.Close().
func initEnv(ctx context.Context, tiers authz.TierResolver) (*clipperEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	fetcher := fetch.NewHTTP(fetch.Options{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		Retry:        resilience.RetryConfig{MaxAttempts: cfg.Fetch.MaxRetries + 1},
	})

	// AI extraction is optional; without a key the pipeline runs
	// deterministic-only and uploads are rejected.
	var ai extract.Extractor
	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key, anthropicpkg.Options{
			RequestsPerMinute: int(cfg.Anthropic.RequestsPerS * 60),
			Burst:             cfg.Anthropic.RequestBurst,
			Timeout:           time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
		})
		ai = extract.NewAI(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
		zap.L().Info("ai extraction enabled", zap.String("model", cfg.Anthropic.Model))
	} else {
		zap.L().Debug("CLIPPER_ANTHROPIC_KEY not set, ai extraction disabled")
	}

	pipe := pipeline.New(pipeline.Config{
		Store:         st,
		Fetcher:       fetcher,
		Deterministic: extract.NewDeterministic(),
		AI:            ai,
		Capability:    authz.NewStaticCapability(tiers),
		AIFallback:    cfg.Extract.AIFallback,
	})

	return &clipperEnv{
		Store:    st,
		Pipeline: pipe,
		Limits: upload.Limits{
			MaxImageBytes:    cfg.Limits.MaxImageBytes,
			MaxDocumentBytes: cfg.Limits.MaxDocumentBytes,
		},
	}, nil
}

// initCLIEnv is initEnv for local commands, which always run as pro tier.
func initCLIEnv(ctx context.Context) (*clipperEnv, error) {
	return initEnv(ctx, func(string) authz.Tier { return authz.TierPro })
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
