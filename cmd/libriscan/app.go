package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/core"
	"github.com/libriscan/libriscan/internal/curation"
	"github.com/libriscan/libriscan/internal/export"
	"github.com/libriscan/libriscan/internal/extract"
	"github.com/libriscan/libriscan/internal/metrics"
	"github.com/libriscan/libriscan/internal/repository"
	"github.com/libriscan/libriscan/internal/server"
	"github.com/libriscan/libriscan/internal/suggest"
)

// app is the wired object graph shared by every command that touches the database.
type app struct {
	cfg     *common.Config
	logger  *slog.Logger
	db      *repository.DB
	metrics *metrics.Metrics

	orgs   repository.OrganizationRepository
	pages  repository.PageRepository
	blocks repository.TextBlockRepository
	jobs   repository.ExtractJobRepository
	leases repository.LeaseStore

	engine   *suggest.Engine
	orch     *core.Orchestrator
	curation *curation.Service
	export   *export.Service
}

func newEngine(cfg common.SuggestConfig) (*suggest.Engine, error) {
	var dict *suggest.Dictionary
	if cfg.DictionaryPath != "" {
		d, err := suggest.LoadDictionary(cfg.DictionaryPath)
		if err != nil {
			return nil, err
		}
		dict = d
	}
	return suggest.NewEngine(dict, cfg.MaxResults), nil
}

// openApp connects to the database, applies the schema and wires every service.
// A nil reg gives the metrics a private registry.
func openApp(ctx context.Context, cfg *common.Config, logger *slog.Logger, reg prometheus.Registerer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine, err := newEngine(cfg.Suggest)
	if err != nil {
		return nil, err
	}
	backends, err := extract.NewRegistryFromConfig(cfg.Extraction, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("build extraction backends: %w", err)
	}

	db, err := server.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, logger); err != nil {
		server.CloseDB(db, logger)
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(reg),
		engine:  engine,
		orgs:    repository.NewOrganizationRepository(db, logger),
		pages:   repository.NewPageRepository(db, logger),
		blocks:  repository.NewTextBlockRepository(db, logger),
		jobs:    repository.NewExtractJobRepository(db, logger),
		leases:  repository.NewLeaseStore(db, logger),
	}
	extractor := extract.NewExtractor(backends, db, a.blocks, engine, cfg.Extraction.BatchSize, logger)
	a.orch = core.NewOrchestrator(logger, a.pages, a.blocks, a.jobs, a.leases, extractor,
		core.WithLeaseTimeout(cfg.Extraction.LeaseTimeout),
		core.WithMetrics(a.metrics),
	)
	a.curation = curation.NewService(db, a.blocks, a.pages, a.engine, a.metrics, logger)
	a.export = export.NewService(a.orgs, a.pages, a.blocks, logger)
	return a, nil
}

func (a *app) Close() {
	server.CloseDB(a.db, a.logger)
}

// withApp loads configuration, opens the app for the length of fn and closes it.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	loader, logger, _, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, loader.Get(), logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	if actor != "" {
		ctx = common.WithActor(ctx, actor)
	}
	return fn(ctx, a)
}
