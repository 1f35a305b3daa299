package embedding

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

const (
	geminiEmbeddingModel = "gemini-embedding-001"
	geminiMaxBatch       = 100
)

// geminiModels is the part of genai.Models used for embeddings.
type geminiModels interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

type geminiEmbedder struct {
	models    geminiModels
	model     string
	batchSize int
}

func newGeminiEmbedder(ctx context.Context, cfg Config) (*geminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", common.ErrMissingAPIKey, model.ProviderGemini)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGeminiEmbedderWith(client.Models, cfg.Model, cfg.BatchSize), nil
}

func newGeminiEmbedderWith(models geminiModels, modelName string, batchSize int) *geminiEmbedder {
	if modelName == "" {
		modelName = geminiEmbeddingModel
	}
	if batchSize <= 0 || batchSize > geminiMaxBatch {
		batchSize = geminiMaxBatch
	}
	return &geminiEmbedder{models: models, model: modelName, batchSize: batchSize}
}

func (g *geminiEmbedder) Name() string      { return model.ProviderGemini }
func (g *geminiEmbedder) MaxBatchSize() int { return g.batchSize }

func geminiTaskType(p Purpose) string {
	if p == PurposeQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

// Embed implements Embedder.
func (g *geminiEmbedder) Embed(ctx context.Context, texts []string, purpose Purpose) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: t}},
		}
	}

	resp, err := g.models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		TaskType: geminiTaskType(purpose),
	})
	if err != nil {
		return nil, geminiError(err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, &common.ProviderError{
			Provider: model.ProviderGemini,
			Op:       "embed",
			Err:      fmt.Errorf("expected %d embeddings, got %d", len(texts), got),
		}
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, &common.ProviderError{Provider: model.ProviderGemini, Op: "embed", Err: fmt.Errorf("missing embedding %d", i)}
		}
		out[i] = e.Values
	}
	return out, nil
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		perr := common.NewProviderError(model.ProviderGemini, "embed", apiErr.Code, err)
		if apiErr.Status == "RESOURCE_EXHAUSTED" {
			perr.Retryable = true
			perr.Err = errors.Join(common.ErrRateLimit, err)
		}
		return perr
	}
	return &common.ProviderError{
		Provider:  model.ProviderGemini,
		Op:        "embed",
		Err:       err,
		Retryable: common.IsRetryable(err),
	}
}
