package embedding

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

const (
	openAIBaseURL           = "https://api.openai.com/v1"
	openAIEmbeddingModel    = "text-embedding-3-large"
	openAIMaxBatch          = 100
	deepInfraOpenAIBaseURL  = "https://api.deepinfra.com/v1/openai"
	deepInfraEmbeddingModel = "Qwen/Qwen3-Embedding-8B"
)

// openAIEmbedder talks to any OpenAI-compatible /embeddings endpoint.
type openAIEmbedder struct {
	client    httpDoer
	name      string
	apiKey    string
	model     string
	baseURL   string
	batchSize int
}

func newOpenAIEmbedder(cfg Config) (*openAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", common.ErrMissingAPIKey, cfg.Provider)
	}
	e := &openAIEmbedder{
		client:    doerFor(cfg.HTTPClient),
		name:      model.ProviderOpenAI,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		batchSize: cfg.BatchSize,
	}
	if e.model == "" {
		e.model = openAIEmbeddingModel
	}
	if e.baseURL == "" {
		e.baseURL = openAIBaseURL
	}
	if e.batchSize <= 0 {
		e.batchSize = openAIMaxBatch
	}
	return e, nil
}

func (e *openAIEmbedder) Name() string      { return e.name }
func (e *openAIEmbedder) MaxBatchSize() int { return e.batchSize }

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed implements Embedder. OpenAI models are symmetric, so purpose is ignored.
func (e *openAIEmbedder) Embed(ctx context.Context, texts []string, _ Purpose) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"model":           e.model,
		"input":           texts,
		"encoding_format": "float",
	}

	var resp openAIEmbeddingResponse
	if err := postJSON(ctx, e.client, e.name, "embed", e.baseURL+"/embeddings", e.apiKey, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, &common.ProviderError{
			Provider: e.name,
			Op:       "embed",
			Err:      fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
		}
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
