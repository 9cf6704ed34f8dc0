// Package app wires storage, the catalog snapshot and the engine services
// shared by the picklist binaries.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"picklist/internal/catalog"
	"picklist/internal/config"
	"picklist/internal/logging"
	"picklist/internal/matching"
	"picklist/internal/pipeline"
	"picklist/internal/preference"
	"picklist/internal/storage"
	"picklist/internal/supplier"
)

type App struct {
	Config     config.Config
	DB         *storage.DB
	Logger     *zap.Logger
	Index      *catalog.Index
	Processing *pipeline.ProcessingService
	Learner    *preference.Learner
}

// Open opens the database and builds the services on top of it. The
// catalog index is a snapshot taken at open time.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &App{Config: cfg, DB: db, Logger: logger}
	if err := a.Reload(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	a.Learner = preference.NewLearner(db, db, cfg.StoreTimeout(), logger.Named("preference"))
	return a, nil
}

// Reload rebuilds the catalog snapshot and the services reading from it.
func (a *App) Reload(ctx context.Context) error {
	idx, err := catalog.LoadIndex(ctx, a.DB)
	if err != nil {
		return err
	}

	timeout := a.Config.StoreTimeout()
	matcher := matching.NewMatcher(idx, matching.OptionsFromConfig(a.Config), a.Logger.Named("matching"))
	resolver := matching.NewResolver(a.DB, idx, idx, matcher, timeout, a.Logger.Named("resolver"))
	engine := supplier.NewEngine(a.DB, idx, nil, timeout, a.Logger.Named("supplier"))

	a.Index = idx
	a.Processing = pipeline.NewProcessingService(resolver, engine, idx, a.DB, pipeline.Options{
		Workers:   a.Config.BatchWorkers,
		CacheSize: a.Config.OfferCacheSize,
	}, a.Logger.Named("pipeline"))

	a.Logger.Info("catalog snapshot loaded", zap.Int("products", idx.Len()))
	return nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
