package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/config"
	"github.com/Veraticus/boq-price-match/internal/embedding"
	"github.com/Veraticus/boq-price-match/internal/model"
	"github.com/Veraticus/boq-price-match/internal/scoring"
)

// Registry owns the scorers for every usable match method and the provider
// adapters behind them.
type Registry struct {
	scorers  map[model.MatchMethod]scoring.Scorer
	adapters []*embedding.Adapter
}

// NewRegistry builds a scorer for every method whose providers have
// credentials. LOCAL is always available. Methods without credentials are
// skipped and rejected at match time.
func NewRegistry(ctx context.Context, cfg config.Config, httpClient *http.Client, logger *slog.Logger) (*Registry, error) {
	logger = common.LoggerOrDefault(logger)
	r := &Registry{
		scorers: map[model.MatchMethod]scoring.Scorer{
			model.MethodLocal: scoring.NewLocalScorer(cfg),
		},
	}

	type pair struct{ embedder, reranker string }
	adapters := make(map[pair]*embedding.Adapter)

	for _, name := range model.MethodNames() {
		method, err := model.ParseMatchMethod(name)
		if err != nil {
			return nil, err
		}
		if method.Kind == model.KindLocal {
			continue
		}

		key := pair{method.Embedder, method.Reranker}
		adapter, ok := adapters[key]
		if !ok {
			adapter, err = newAdapter(ctx, cfg, httpClient, method, logger)
			if errors.Is(err, common.ErrMissingAPIKey) {
				logger.Debug("Match method unavailable", "method", method.String(), "reason", err)
				continue
			}
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("method %s: %w", method, err)
			}
			adapters[key] = adapter
			r.adapters = append(r.adapters, adapter)
		}
		r.scorers[method] = scoring.NewHybridScorer(method, adapter, cfg, logger)
	}

	return r, nil
}

func newAdapter(ctx context.Context, cfg config.Config, httpClient *http.Client, method model.MatchMethod, logger *slog.Logger) (*embedding.Adapter, error) {
	var (
		embedder embedding.Embedder
		reranker embedding.Reranker
		err      error
	)
	if method.Embedder != "" {
		embedder, err = embedding.NewEmbedder(ctx, providerConfig(cfg, method.Embedder, httpClient))
		if err != nil {
			return nil, err
		}
	}
	if method.Reranker != "" {
		reranker, err = embedding.NewReranker(providerConfig(cfg, method.Reranker, httpClient))
		if err != nil {
			return nil, err
		}
	}

	batchSize := 0
	if method.Embedder != "" {
		batchSize = cfg.BatchSizeFor(method.Embedder, 0)
	}

	return embedding.NewAdapter(embedder, reranker, embedding.AdapterOptions{
		Logger:            logger,
		Retry:             cfg.Retry.Policy(),
		Timeout:           cfg.Performance.ProviderTimeout,
		CacheTTL:          cfg.Caching.TTL,
		CacheSize:         cfg.Caching.MaxSize,
		CacheEnabled:      cfg.Caching.Enabled,
		BatchSize:         batchSize,
		RequestsPerMinute: cfg.Embedding.RateLimit,
	}), nil
}

func providerConfig(cfg config.Config, provider string, httpClient *http.Client) embedding.Config {
	p := cfg.Providers[provider]
	return embedding.Config{
		HTTPClient: httpClient,
		Provider:   provider,
		APIKey:     p.APIKey,
		Model:      p.Model,
		BaseURL:    p.BaseURL,
		BatchSize:  cfg.BatchSizeFor(provider, 0),
	}
}

// Register adds or replaces the scorer for method.
func (r *Registry) Register(method model.MatchMethod, s scoring.Scorer) {
	r.scorers[method] = s
}

// Scorers returns the dispatch table.
func (r *Registry) Scorers() map[model.MatchMethod]scoring.Scorer {
	return r.scorers
}

// Available lists the usable method names in declaration order.
func (r *Registry) Available() []string {
	var out []string
	for _, name := range model.MethodNames() {
		m, err := model.ParseMatchMethod(name)
		if err != nil {
			continue
		}
		if _, ok := r.scorers[m]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Close releases every provider adapter.
func (r *Registry) Close() {
	for _, a := range r.adapters {
		a.Close()
	}
	r.adapters = nil
}
