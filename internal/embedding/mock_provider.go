package embedding

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Veraticus/boq-price-match/internal/normalize"
)

const mockDimensions = 128

// MockEmbedder is a deterministic in-process Embedder for tests. It hashes
// word stems into a bag-of-words vector, so texts sharing words are close.
type MockEmbedder struct {
	// Err, when set, is returned by the next FailTimes calls (or every call
	// when FailTimes is zero).
	Err       error
	ProvName  string
	Delay     time.Duration
	BatchSize int
	FailTimes int
	calls     []MockEmbedCall
	mu        sync.Mutex
}

// MockEmbedCall records one Embed request.
type MockEmbedCall struct {
	Purpose Purpose
	Texts   []string
}

// NewMockEmbedder creates a mock embedder named name.
func NewMockEmbedder(name string) *MockEmbedder {
	return &MockEmbedder{ProvName: name, BatchSize: 16}
}

func (m *MockEmbedder) Name() string { return m.ProvName }

func (m *MockEmbedder) MaxBatchSize() int { return m.BatchSize }

// Embed implements Embedder.
func (m *MockEmbedder) Embed(ctx context.Context, texts []string, purpose Purpose) ([][]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockEmbedCall{Texts: append([]string(nil), texts...), Purpose: purpose})
	err := m.Err
	if err != nil && m.FailTimes > 0 {
		m.FailTimes--
		if m.FailTimes == 0 {
			m.Err = nil
		}
	}
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = MockVector(t)
	}
	return out, nil
}

// Calls returns the recorded requests.
func (m *MockEmbedder) Calls() []MockEmbedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockEmbedCall(nil), m.calls...)
}

// MockVector is the vector MockEmbedder produces for text.
func MockVector(text string) []float32 {
	v := make([]float32, mockDimensions)
	for _, stem := range normalize.Normalize(text).Stems {
		v[xxhash.Sum64String(stem)%mockDimensions]++
	}
	return v
}

// MockReranker scores documents by the share of query stems they contain.
type MockReranker struct {
	Err      error
	ProvName string
	calls    int
	mu       sync.Mutex
}

// NewMockReranker creates a mock reranker named name.
func NewMockReranker(name string) *MockReranker {
	return &MockReranker{ProvName: name}
}

func (m *MockReranker) Name() string { return m.ProvName }

// Rerank implements Reranker.
func (m *MockReranker) Rerank(_ context.Context, query string, docs []string) ([]RerankResult, error) {
	m.mu.Lock()
	m.calls++
	err := m.Err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	q := normalize.Normalize(query).StemSet()
	out := make([]RerankResult, len(docs))
	for i, d := range docs {
		hits := 0
		for s := range normalize.Normalize(d).StemSet() {
			if _, ok := q[s]; ok {
				hits++
			}
		}
		score := 0.0
		if len(q) > 0 {
			score = float64(hits) / float64(len(q))
		}
		out[i] = RerankResult{Index: i, RelevanceScore: score}
	}
	return out, nil
}

// Calls returns how many times Rerank ran.
func (m *MockReranker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
