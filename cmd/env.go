package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sledworks/catalog-cli/internal/catalog"
	"github.com/sledworks/catalog-cli/internal/enrich"
	"github.com/sledworks/catalog-cli/internal/matcher"
	"github.com/sledworks/catalog-cli/internal/pipeline"
	"github.com/sledworks/catalog-cli/internal/store"
	"github.com/sledworks/catalog-cli/internal/validate"
	"github.com/sledworks/catalog-cli/pkg/anthropic"
)

// env bundles the wired collaborators shared by the processing commands.
type env struct {
	Catalog  catalog.ReadWriter
	Store    store.Store
	Client   *enrich.Client
	Pipeline *pipeline.Pipeline
}

// openCatalog opens the base-model catalog on the same backend as the
// product store and runs migrations.
func openCatalog(ctx context.Context) (catalog.ReadWriter, error) {
	var (
		cs  catalog.ReadWriter
		err error
	)
	if cfg.Store.Driver == "postgres" {
		cs, err = catalog.NewPostgres(ctx, cfg.Store.DatabaseURL)
	} else {
		cs, err = catalog.NewSQLite(cfg.Store.DatabaseURL)
	}
	if err != nil {
		return nil, err
	}
	if err := cs.Migrate(ctx); err != nil {
		cs.Close()
		return nil, err
	}
	return cs, nil
}

// openStore opens the configured product store and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			return nil, err
		}
		return st, nil
	default:
		st, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			return nil, err
		}
		return st, nil
	}
}

// initEnv wires the full reconciliation stack. The semantic fallback is
// only enabled when an Anthropic key is configured; without one the
// pipeline runs structured-only.
func initEnv(ctx context.Context) (*env, error) {
	cs, err := openCatalog(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "open catalog store")
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "open product store")
	}

	patterns := matcher.DefaultPatterns()
	if cfg.Matcher.PatternsPath != "" {
		patterns, err = matcher.LoadPatterns(cfg.Matcher.PatternsPath)
		if err != nil {
			return nil, eris.Wrap(err, "load pattern table")
		}
	}
	m := matcher.New(cs, patterns)

	var (
		client   *enrich.Client
		fallback pipeline.Fallback
		usage    pipeline.UsageSource
	)
	if cfg.Anthropic.Key != "" {
		ecfg := enrich.DefaultConfig()
		ecfg.Model = cfg.Anthropic.Model
		ecfg.MaxTokens = int64(cfg.Anthropic.MaxTokens)
		ecfg.MinInterval = time.Duration(cfg.Enrich.MinIntervalMS) * time.Millisecond
		ecfg.MaxConcurrent = cfg.Enrich.MaxConcurrent
		ecfg.BatchSize = cfg.Enrich.MaxBatchSize
		if cfg.Enrich.MaxRetries > 0 {
			ecfg.Retry.MaxAttempts = cfg.Enrich.MaxRetries
		}
		if cfg.Enrich.BreakerThreshold > 0 {
			ecfg.Breaker.FailureThreshold = cfg.Enrich.BreakerThreshold
		}
		if cfg.Enrich.BreakerResetS > 0 {
			ecfg.Breaker.ResetTimeout = time.Duration(cfg.Enrich.BreakerResetS) * time.Second
		}
		client = enrich.NewClient(anthropic.NewClient(cfg.Anthropic.Key), ecfg)
		fallback = enrich.NewSemanticMatcher(client, cs)
		usage = client
	}

	p := pipeline.New(
		pipeline.Config{
			Thresholds:      cfg.Pipeline.Thresholds,
			StageAcceptance: cfg.Pipeline.StageAcceptance,
			MaxConcurrent:   cfg.Pipeline.MaxConcurrent,
			AuditUser:       cfg.Pipeline.AuditUser,
		},
		cs, m, fallback,
		validate.New(cs, validate.DefaultVocabulary()),
		st, nil, usage,
	)

	return &env{Catalog: cs, Store: st, Client: client, Pipeline: p}, nil
}

// Close releases database handles.
func (e *env) Close() {
	if e.Catalog != nil {
		_ = e.Catalog.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}
