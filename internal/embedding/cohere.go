package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

const (
	cohereBaseURL        = "https://api.cohere.com"
	cohereEmbeddingModel = "embed-english-v3.0"
	cohereRerankModel    = "rerank-v3.5"
	cohereMaxBatch       = 96
)

// cohereClient serves both embeddings and reranking from the Cohere v2 API.
type cohereClient struct {
	client      httpDoer
	apiKey      string
	model       string
	rerankModel string
	baseURL     string
	batchSize   int
}

func newCohereClient(cfg Config) (*cohereClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", common.ErrMissingAPIKey, model.ProviderCohere)
	}
	c := &cohereClient{
		client:      doerFor(cfg.HTTPClient),
		apiKey:      cfg.APIKey,
		model:       cohereEmbeddingModel,
		rerankModel: cohereRerankModel,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		batchSize:   cfg.BatchSize,
	}
	if cfg.Model != "" {
		if strings.HasPrefix(cfg.Model, "rerank") {
			c.rerankModel = cfg.Model
		} else {
			c.model = cfg.Model
		}
	}
	if c.baseURL == "" {
		c.baseURL = cohereBaseURL
	}
	if c.batchSize <= 0 || c.batchSize > cohereMaxBatch {
		c.batchSize = cohereMaxBatch
	}
	return c, nil
}

func (c *cohereClient) Name() string      { return model.ProviderCohere }
func (c *cohereClient) MaxBatchSize() int { return c.batchSize }

type cohereEmbedResponse struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
	ID string `json:"id"`
}

func cohereInputType(p Purpose) string {
	if p == PurposeQuery {
		return "search_query"
	}
	return "search_document"
}

// Embed implements Embedder.
func (c *cohereClient) Embed(ctx context.Context, texts []string, purpose Purpose) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"model":           c.model,
		"texts":           texts,
		"input_type":      cohereInputType(purpose),
		"embedding_types": []string{"float"},
		"truncate":        "END",
	}

	var resp cohereEmbedResponse
	if err := postJSON(ctx, c.client, model.ProviderCohere, "embed", c.baseURL+"/v2/embed", c.apiKey, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings.Float) != len(texts) {
		return nil, &common.ProviderError{
			Provider: model.ProviderCohere,
			Op:       "embed",
			Err:      fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings.Float)),
		}
	}
	return resp.Embeddings.Float, nil
}

type cohereRerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank implements Reranker.
func (c *cohereClient) Rerank(ctx context.Context, query string, docs []string) ([]RerankResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"model":     c.rerankModel,
		"query":     query,
		"documents": docs,
		"top_n":     len(docs),
	}

	var resp cohereRerankResponse
	if err := postJSON(ctx, c.client, model.ProviderCohere, "rerank", c.baseURL+"/v2/rerank", c.apiKey, body, &resp); err != nil {
		return nil, err
	}

	out := make([]RerankResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, &common.ProviderError{
				Provider: model.ProviderCohere,
				Op:       "rerank",
				Err:      fmt.Errorf("result index %d out of range", r.Index),
			}
		}
		out = append(out, RerankResult{Index: r.Index, RelevanceScore: r.RelevanceScore})
	}
	return out, nil
}
