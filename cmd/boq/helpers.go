package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/viper"

	"github.com/Veraticus/boq-price-match/internal/config"
	"github.com/Veraticus/boq-price-match/internal/engine"
	"github.com/Veraticus/boq-price-match/internal/learning"
	"github.com/Veraticus/boq-price-match/internal/model"
	"github.com/Veraticus/boq-price-match/internal/pgstore"
	"github.com/Veraticus/boq-price-match/internal/storage"
)

// catalogStore is what both database drivers provide for the price list and
// learned patterns.
type catalogStore interface {
	engine.CatalogProvider
	learning.PatternStore
	ReplacePriceItems(ctx context.Context, items []model.PriceItem) error
	ListPatterns(ctx context.Context, limit int) ([]model.LearnedPattern, error)
}

// stores bundles the opened databases. Job history always lives in the local
// SQLite database; the catalog and patterns follow database.driver.
type stores struct {
	catalog catalogStore
	local   *storage.SQLiteStorage
	pg      *pgstore.Store
}

func (s *stores) Close() {
	if s.pg != nil {
		s.pg.Close()
	}
	if s.local != nil {
		if err := s.local.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}
}

// initStorage opens and migrates the local SQLite database.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := config.DatabasePath(viper.GetString("database.path"))

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initStores opens every database the configured driver needs.
func initStores(ctx context.Context) (*stores, error) {
	local, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}
	s := &stores{local: local, catalog: local}

	switch driver := viper.GetString("database.driver"); driver {
	case "", "sqlite":
	case "postgres":
		pg, err := pgstore.Connect(ctx, viper.GetString("database.url"))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.pg = pg
		if err := pg.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		s.catalog = pg
	default:
		s.Close()
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	slog.Debug("Opened storage", "driver", viper.GetString("database.driver"), "path", local.Path())
	return s, nil
}

// loadMatchConfig reads the matching configuration from viper.
func loadMatchConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}

// matcherSet is a ready matcher plus the resources it owns.
type matcherSet struct {
	matcher  *engine.Matcher
	registry *engine.Registry
	catalog  *engine.CachedCatalog
	cfg      config.Config
}

func (m *matcherSet) Close() {
	m.registry.Close()
}

// initMatcher wires scorers, the cached catalog and the learner over s.
func initMatcher(ctx context.Context, s *stores) (*matcherSet, error) {
	cfg, err := loadMatchConfig()
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	if budget := cfg.RetryBudget(); budget > cfg.Performance.ItemProcessingTimeout {
		logger.Warn("Provider retries can outlast the item timeout; slow items will be rescored locally",
			"retry_budget", budget,
			"item_timeout", cfg.Performance.ItemProcessingTimeout)
	}
	client := &http.Client{Timeout: cfg.Performance.ProviderTimeout}
	registry, err := engine.NewRegistry(ctx, cfg, client, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure match methods: %w", err)
	}

	catalog := engine.NewCachedCatalog(s.catalog, cfg.Catalog.TTL, logger)
	learner := learning.NewLearner(s.catalog, cfg.Learning.Threshold, logger)

	matcher, err := engine.NewMatcher(cfg, catalog, learner, registry.Scorers(), logger)
	if err != nil {
		registry.Close()
		return nil, err
	}

	return &matcherSet{matcher: matcher, registry: registry, catalog: catalog, cfg: cfg}, nil
}
