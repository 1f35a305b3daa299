package learning

import (
	"context"
	"sort"
	"sync"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

// MemoryStore is an in-process PatternStore.
type MemoryStore struct {
	patterns map[string]model.LearnedPattern
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{patterns: make(map[string]model.LearnedPattern)}
}

// FindPattern implements PatternStore. The returned pattern is a copy.
func (s *MemoryStore) FindPattern(ctx context.Context, signature string) (*model.LearnedPattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patterns[signature]
	if !ok {
		return nil, common.ErrPatternNotFound
	}
	p.ContextHeaders = append([]string(nil), p.ContextHeaders...)
	return &p, nil
}

// UpsertPattern implements PatternStore.
func (s *MemoryStore) UpsertPattern(ctx context.Context, p *model.LearnedPattern) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	cp.ContextHeaders = append([]string(nil), p.ContextHeaders...)
	if existing, ok := s.patterns[p.QuerySignature]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	}
	s.patterns[p.QuerySignature] = cp
	return nil
}

// ListPatterns returns up to limit patterns, most used first. A limit of zero
// or less returns all of them.
func (s *MemoryStore) ListPatterns(ctx context.Context, limit int) ([]model.LearnedPattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.LearnedPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].QuerySignature < out[j].QuerySignature
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
