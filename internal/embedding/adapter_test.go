package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/boq-price-match/internal/common"
)

func testAdapterOptions() AdapterOptions {
	return AdapterOptions{
		Retry: common.RetryPolicy{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		},
		Timeout:           time.Second,
		CacheEnabled:      true,
		CacheSize:         100,
		CacheTTL:          time.Minute,
		RequestsPerMinute: 6000,
	}
}

func TestAdapter_EmbedBatchesAndCaches(t *testing.T) {
	mock := NewMockEmbedder("mock")
	mock.BatchSize = 2
	a := NewAdapter(mock, nil, testAdapterOptions())
	defer a.Close()

	texts := []string{"concrete slab", "rebar", "formwork", "Concrete  Slab", "blockwork"}
	vecs, err := a.Embed(context.Background(), texts, PurposeDocument)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	// "Concrete  Slab" folds onto "concrete slab", so four distinct texts in two batches.
	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[0].Texts, 2)
	assert.Len(t, calls[1].Texts, 2)
	assert.Equal(t, vecs[0], vecs[3])
	assert.Equal(t, MockVector("rebar"), vecs[1])

	again, err := a.Embed(context.Background(), []string{"rebar", "new text"}, PurposeDocument)
	require.NoError(t, err)
	assert.Equal(t, vecs[1], again[0])

	calls = mock.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"new text"}, calls[2].Texts)

	hits, misses := a.CacheStats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(5), misses)
}

func TestAdapter_PurposeIsPartOfCacheKey(t *testing.T) {
	mock := NewMockEmbedder("mock")
	a := NewAdapter(mock, nil, testAdapterOptions())
	defer a.Close()

	_, err := a.Embed(context.Background(), []string{"pipe"}, PurposeDocument)
	require.NoError(t, err)
	_, err = a.Embed(context.Background(), []string{"pipe"}, PurposeQuery)
	require.NoError(t, err)

	assert.Len(t, mock.Calls(), 2)
}

func TestAdapter_CacheDisabled(t *testing.T) {
	mock := NewMockEmbedder("mock")
	opts := testAdapterOptions()
	opts.CacheEnabled = false
	a := NewAdapter(mock, nil, opts)
	defer a.Close()

	for range 2 {
		_, err := a.Embed(context.Background(), []string{"pipe"}, PurposeDocument)
		require.NoError(t, err)
	}
	assert.Len(t, mock.Calls(), 2)
}

func TestAdapter_RetriesTransientErrors(t *testing.T) {
	mock := NewMockEmbedder("mock")
	mock.Err = common.NewProviderError("mock", "embed", 503, errors.New("busy"))
	mock.FailTimes = 2
	a := NewAdapter(mock, nil, testAdapterOptions())
	defer a.Close()

	vecs, err := a.Embed(context.Background(), []string{"pipe"}, PurposeDocument)
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Len(t, mock.Calls(), 3)
}

func TestAdapter_FatalErrorNotRetried(t *testing.T) {
	mock := NewMockEmbedder("mock")
	mock.Err = common.NewProviderError("mock", "embed", 401, errors.New("bad key"))
	a := NewAdapter(mock, nil, testAdapterOptions())
	defer a.Close()

	_, err := a.Embed(context.Background(), []string{"pipe"}, PurposeDocument)
	require.Error(t, err)
	assert.True(t, common.IsFatalProvider(err))
	assert.Len(t, mock.Calls(), 1)
}

func TestAdapter_TimeoutIsTransient(t *testing.T) {
	mock := NewMockEmbedder("mock")
	mock.Delay = 200 * time.Millisecond
	opts := testAdapterOptions()
	opts.Timeout = 10 * time.Millisecond
	opts.Retry.MaxAttempts = 2
	a := NewAdapter(mock, nil, opts)
	defer a.Close()

	start := time.Now()
	_, err := a.Embed(context.Background(), []string{"pipe"}, PurposeDocument)
	require.Error(t, err)

	assert.ErrorIs(t, err, common.ErrMaxRetries)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, common.IsFatalProvider(err))
	assert.Len(t, mock.Calls(), 2)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestAdapter_Rerank(t *testing.T) {
	reranker := NewMockReranker("mock-rerank")
	a := NewAdapter(nil, reranker, testAdapterOptions())
	defer a.Close()

	results, err := a.Rerank(context.Background(), "armoured cable", []string{"concrete", "armoured cable 4 core"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Greater(t, results[1].RelevanceScore, results[0].RelevanceScore)

	_, err = a.Embed(context.Background(), []string{"x"}, PurposeQuery)
	assert.ErrorIs(t, err, ErrNoProvider)
	assert.Equal(t, "", a.EmbedderName())
	assert.Equal(t, "mock-rerank", a.RerankerName())
}

func TestAdapter_CancelledContext(t *testing.T) {
	mock := NewMockEmbedder("mock")
	a := NewAdapter(mock, nil, testAdapterOptions())
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Embed(ctx, []string{"pipe"}, PurposeDocument)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, common.IsFatalProvider(err))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1}, []float32{1, 2}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}), 1e-9)
}
