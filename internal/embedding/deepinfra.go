package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

const (
	deepInfraBaseURL     = "https://api.deepinfra.com"
	deepInfraRerankModel = "Qwen/Qwen3-Reranker-8B"
)

// deepInfraReranker calls a hosted cross-encoder through the DeepInfra
// inference API.
type deepInfraReranker struct {
	client  httpDoer
	apiKey  string
	model   string
	baseURL string
}

func newDeepInfraReranker(cfg Config) (*deepInfraReranker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", common.ErrMissingAPIKey, model.ProviderDeepInfra)
	}
	r := &deepInfraReranker{
		client:  doerFor(cfg.HTTPClient),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
	if r.model == "" || !strings.Contains(strings.ToLower(r.model), "rerank") {
		r.model = deepInfraRerankModel
	}
	if r.baseURL == "" {
		r.baseURL = deepInfraBaseURL
	}
	return r, nil
}

func (r *deepInfraReranker) Name() string { return model.ProviderDeepInfra }

type deepInfraRerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Rerank implements Reranker.
func (r *deepInfraReranker) Rerank(ctx context.Context, query string, docs []string) ([]RerankResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"queries":   []string{query},
		"documents": docs,
	}

	var resp deepInfraRerankResponse
	url := r.baseURL + "/v1/inference/" + r.model
	if err := postJSON(ctx, r.client, model.ProviderDeepInfra, "rerank", url, r.apiKey, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Scores) != len(docs) {
		return nil, &common.ProviderError{
			Provider: model.ProviderDeepInfra,
			Op:       "rerank",
			Err:      fmt.Errorf("expected %d scores, got %d", len(docs), len(resp.Scores)),
		}
	}

	out := make([]RerankResult, len(docs))
	for i, s := range resp.Scores {
		out[i] = RerankResult{Index: i, RelevanceScore: s}
	}
	return out, nil
}
