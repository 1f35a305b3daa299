package learning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

var guardRail = model.PriceItem{Code: "GW001", Description: "Galvanised steel guard rail", Unit: "m", Rate: 85}

func TestSignature(t *testing.T) {
	base := Signature("Guard rail, galvanised", []string{"Metalwork", "External Works"})

	assert.Equal(t, base, Signature("  guard RAIL galvanised ", []string{"external works", "METALWORK"}))
	assert.Equal(t, base, Signature("the guard rail and galvanised", []string{"Metalwork", "", "External Works"}))
	assert.NotEqual(t, base, Signature("Guard rail, galvanised", []string{"Metalwork"}))
	assert.NotEqual(t, base, Signature("Guard rail, painted", []string{"Metalwork", "External Works"}))
}

func TestLearner_RoundTrip(t *testing.T) {
	ctx := context.Background()
	l := NewLearner(NewMemoryStore(), 0.8, nil)
	query := model.MatchQuery{Description: "Galvanised guard rail to car park", ContextHeaders: []string{"External Works"}}

	p, err := l.FindLearnedMatch(ctx, query)
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, l.RecordAcceptedMatch(ctx, query, guardRail, 1.0))

	p, err = l.FindLearnedMatch(ctx, query)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "GW001", p.ChosenItemCode)
	assert.Equal(t, "galvanised guard rail car park", p.NormalizedDescription)
	assert.Equal(t, []string{"external works"}, p.ContextHeaders)
	assert.Equal(t, 2, p.UsageCount)
	assert.NotEmpty(t, p.ID)
}

func TestLearner_BelowThresholdIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := NewLearner(store, 0.8, nil)
	query := model.MatchQuery{Description: "guard rail"}

	require.NoError(t, l.RecordAcceptedMatch(ctx, query, guardRail, 0.5))

	patterns, err := store.ListPatterns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestLearner_RepeatRecordingsBumpUsageAndLastWriteWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := NewLearner(store, 0.8, nil)
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return clock }
	query := model.MatchQuery{Description: "guard rail"}

	require.NoError(t, l.RecordAcceptedMatch(ctx, query, guardRail, 0.9))
	clock = clock.Add(time.Hour)
	require.NoError(t, l.RecordAcceptedMatch(ctx, query, model.PriceItem{Code: "GW002"}, 0.95))

	patterns, err := store.ListPatterns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "GW002", patterns[0].ChosenItemCode)
	assert.Equal(t, 2, patterns[0].UsageCount)
	assert.Equal(t, clock, patterns[0].LastUsedAt)
	assert.Equal(t, clock.Add(-time.Hour), patterns[0].CreatedAt)
}

func TestLearner_RejectsBadInput(t *testing.T) {
	l := NewLearner(NewMemoryStore(), 0.8, nil)

	err := l.RecordAcceptedMatch(context.Background(), model.MatchQuery{Description: "guard rail"}, model.PriceItem{}, 1)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	err = l.RecordAcceptedMatch(context.Background(), model.MatchQuery{Description: " , "}, guardRail, 1)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

type failingStore struct {
	findErr   error
	upsertErr error
	*MemoryStore
}

func (f *failingStore) FindPattern(ctx context.Context, sig string) (*model.LearnedPattern, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.MemoryStore.FindPattern(ctx, sig)
}

func (f *failingStore) UpsertPattern(ctx context.Context, p *model.LearnedPattern) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.MemoryStore.UpsertPattern(ctx, p)
}

func TestLearner_StoreErrors(t *testing.T) {
	ctx := context.Background()
	query := model.MatchQuery{Description: "guard rail"}

	store := &failingStore{MemoryStore: NewMemoryStore(), findErr: errors.New("disk gone")}
	l := NewLearner(store, 0.8, nil)
	_, err := l.FindLearnedMatch(ctx, query)
	require.Error(t, err)

	// a failed usage bump does not hide the hit
	store = &failingStore{MemoryStore: NewMemoryStore()}
	l = NewLearner(store, 0.8, nil)
	require.NoError(t, l.RecordAcceptedMatch(ctx, query, guardRail, 1))
	store.upsertErr = errors.New("read only")
	p, err := l.FindLearnedMatch(ctx, query)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "GW001", p.ChosenItemCode)
}

func TestLearner_ConcurrentRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := NewLearner(store, 0.8, nil)
	query := model.MatchQuery{Description: "guard rail"}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.RecordAcceptedMatch(ctx, query, guardRail, 1))
		}()
	}
	wg.Wait()

	patterns, err := store.ListPatterns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.GreaterOrEqual(t, patterns[0].UsageCount, 1)
	assert.LessOrEqual(t, patterns[0].UsageCount, 20)
}
