package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/embedding"
	"github.com/Veraticus/boq-price-match/internal/model"
)

func newTestAdapter(t *testing.T, e embedding.Embedder, r embedding.Reranker) *embedding.Adapter {
	t.Helper()
	a := embedding.NewAdapter(e, r, embedding.AdapterOptions{
		Retry: common.RetryPolicy{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1,
		},
		Timeout:           time.Second,
		CacheEnabled:      true,
		CacheSize:         1000,
		CacheTTL:          time.Minute,
		RequestsPerMinute: 60000,
	})
	t.Cleanup(a.Close)
	return a
}

func TestHybridScorer_EmbeddingOnly(t *testing.T) {
	a := newTestAdapter(t, embedding.NewMockEmbedder(model.ProviderCohere), nil)
	s := NewHybridScorer(model.MethodCohere, a, testConfig(), nil)

	out, err := s.Score(context.Background(), model.MatchQuery{Description: "armoured cable 4mm2", Unit: "m"}, testCatalog())
	require.NoError(t, err)
	require.NotEmpty(t, out.Candidates)

	assert.Equal(t, "EL-104", out.Candidates[0].Item.Code)
	assert.Empty(t, out.Warnings)
	for _, c := range out.Candidates {
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 1.0)
	}
}

func TestHybridScorer_Rerank(t *testing.T) {
	reranker := embedding.NewMockReranker(model.ProviderCohere)
	a := newTestAdapter(t, embedding.NewMockEmbedder(model.ProviderCohere), reranker)
	s := NewHybridScorer(model.MethodCohereRerank, a, testConfig(), nil)

	out, err := s.Score(context.Background(), model.MatchQuery{Description: "excavation in trenches"}, testCatalog())
	require.NoError(t, err)
	require.NotEmpty(t, out.Candidates)

	assert.Equal(t, "EXC-010", out.Candidates[0].Item.Code)
	assert.Equal(t, 1, reranker.Calls())
}

func TestHybridScorer_RerankFailureFallsBackToRecall(t *testing.T) {
	reranker := embedding.NewMockReranker(model.ProviderDeepInfra)
	reranker.Err = common.NewProviderError(model.ProviderDeepInfra, "rerank", 503, errors.New("down"))
	a := newTestAdapter(t, embedding.NewMockEmbedder(model.ProviderCohere), reranker)
	s := NewHybridScorer(model.MethodQwenRerank, a, testConfig(), nil)

	out, err := s.Score(context.Background(), model.MatchQuery{Description: "armoured cable 4mm2"}, testCatalog())
	require.NoError(t, err)

	assert.False(t, out.RecallFailed)
	require.NotEmpty(t, out.Candidates)
	assert.Equal(t, "EL-104", out.Candidates[0].Item.Code)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "rerank unavailable")
}

func TestHybridScorer_SmallCatalogSkipsEmbedding(t *testing.T) {
	t.Run("catalog within shortlist is reranked whole", func(t *testing.T) {
		embedder := embedding.NewMockEmbedder(model.ProviderCohere)
		reranker := embedding.NewMockReranker(model.ProviderCohere)
		a := newTestAdapter(t, embedder, reranker)
		s := NewHybridScorer(model.MethodCohereRerank, a, testConfig(), nil)

		out, err := s.Score(context.Background(), model.MatchQuery{Description: "excavation in trenches"}, testCatalog())
		require.NoError(t, err)
		require.NotEmpty(t, out.Candidates)

		assert.Empty(t, embedder.Calls())
		assert.Equal(t, 1, reranker.Calls())
		assert.Empty(t, out.Warnings)
	})

	t.Run("larger catalog is recalled by embedding first", func(t *testing.T) {
		embedder := embedding.NewMockEmbedder(model.ProviderCohere)
		reranker := embedding.NewMockReranker(model.ProviderCohere)
		a := newTestAdapter(t, embedder, reranker)
		cfg := testConfig()
		cfg.Hybrid.ShortlistSize = 2
		s := NewHybridScorer(model.MethodCohereRerank, a, cfg, nil)

		out, err := s.Score(context.Background(), model.MatchQuery{Description: "excavation in trenches"}, testCatalog())
		require.NoError(t, err)

		assert.NotEmpty(t, embedder.Calls())
		assert.Equal(t, 1, reranker.Calls())
		assert.LessOrEqual(t, len(out.Candidates), 2)
	})
}

func TestHybridScorer_RecallFailure(t *testing.T) {
	embedder := embedding.NewMockEmbedder(model.ProviderOpenAI)
	embedder.Err = common.NewProviderError(model.ProviderOpenAI, "embed", 504, errors.New("gateway timeout"))
	a := newTestAdapter(t, embedder, nil)
	s := NewHybridScorer(model.MethodOpenAI, a, testConfig(), nil)

	out, err := s.Score(context.Background(), model.MatchQuery{Description: "cable"}, testCatalog())
	require.Error(t, err)

	var perr *common.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, out.RecallFailed)
	assert.Empty(t, out.Candidates)
	assert.NotEmpty(t, out.Warnings)
	assert.False(t, common.IsFatalProvider(err))
}

func TestHybridScorer_DirectRerankPrefilters(t *testing.T) {
	reranker := embedding.NewMockReranker(model.ProviderDeepInfra)
	a := newTestAdapter(t, nil, reranker)
	cfg := testConfig()
	cfg.Hybrid.DirectRerankMaxItems = 2
	s := NewHybridScorer(model.MethodQwen, a, cfg, nil)

	out, err := s.Score(context.Background(), model.MatchQuery{Description: "ceramic floor tiles"}, testCatalog())
	require.NoError(t, err)
	require.NotEmpty(t, out.Candidates)

	assert.LessOrEqual(t, len(out.Candidates), 2)
	assert.Equal(t, "FIN-220", out.Candidates[0].Item.Code)
}

func TestHybridScorer_EmptyCatalog(t *testing.T) {
	a := newTestAdapter(t, embedding.NewMockEmbedder(model.ProviderCohere), nil)
	s := NewHybridScorer(model.MethodCohere, a, testConfig(), nil)

	out, err := s.Score(context.Background(), model.MatchQuery{Description: "cable"}, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Candidates)
}

func TestRenormalize(t *testing.T) {
	assert.Equal(t, []float64{0.2, 0.9}, renormalize([]float64{0.2, 0.9}))
	assert.Equal(t, []float64{0, 0.5, 1}, renormalize([]float64{-2, 0, 2}))
	assert.Equal(t, []float64{1, 1}, renormalize([]float64{3, 3}))
	assert.Empty(t, renormalize(nil))
}

func TestQueryText(t *testing.T) {
	got := QueryText(model.MatchQuery{Description: " Cable ", Unit: "m", ContextHeaders: []string{"Electrical", "Power"}})
	assert.Equal(t, "Cable | Context: Electrical > Power | Unit: m", got)
}
