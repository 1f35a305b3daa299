package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

// Purpose tells the provider whether a text is a search query or a document
// being indexed. Asymmetric models embed the two differently.
type Purpose string

// Embedding purposes.
const (
	PurposeQuery    Purpose = "query"
	PurposeDocument Purpose = "document"
)

// Embedder turns texts into vectors.
type Embedder interface {
	Name() string
	MaxBatchSize() int
	Embed(ctx context.Context, texts []string, purpose Purpose) ([][]float32, error)
}

// RerankResult scores one document against a query. Index refers to the
// position in the documents slice passed to Rerank.
type RerankResult struct {
	Index          int
	RelevanceScore float64
}

// Reranker orders documents by relevance to a query.
type Reranker interface {
	Name() string
	Rerank(ctx context.Context, query string, docs []string) ([]RerankResult, error)
}

// Config holds the settings for one provider client.
type Config struct {
	HTTPClient *http.Client
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	BatchSize  int
}

// NewEmbedder creates the embedder for cfg.Provider.
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case model.ProviderOpenAI:
		e, err := newOpenAIEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	case model.ProviderCohere:
		c, err := newCohereClient(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case model.ProviderDeepInfra:
		if cfg.BaseURL == "" {
			cfg.BaseURL = deepInfraOpenAIBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = deepInfraEmbeddingModel
		}
		e, err := newOpenAIEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		e.name = model.ProviderDeepInfra
		return e, nil
	case model.ProviderGemini:
		g, err := newGeminiEmbedder(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("%w: embedder %q", common.ErrUnknownProvider, cfg.Provider)
	}
}

// NewReranker creates the reranker for cfg.Provider.
func NewReranker(cfg Config) (Reranker, error) {
	switch strings.ToLower(cfg.Provider) {
	case model.ProviderCohere:
		c, err := newCohereClient(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case model.ProviderDeepInfra:
		r, err := newDeepInfraReranker(cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: reranker %q", common.ErrUnknownProvider, cfg.Provider)
	}
}
