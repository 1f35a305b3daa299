package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/boq-price-match/internal/model"
)

func TestLocalScorer_CableBeatsConcrete(t *testing.T) {
	s := NewLocalScorer(testConfig())
	query := model.MatchQuery{Description: "Supply and install 4mm² armoured cable", Unit: "m", Method: model.MethodLocal}

	out, err := s.Score(context.Background(), query, testCatalog())
	require.NoError(t, err)
	require.NotEmpty(t, out.Candidates)

	assert.Equal(t, "EL-104", out.Candidates[0].Item.Code)
	for _, c := range out.Candidates[1:] {
		assert.Greater(t, out.Candidates[0].Score, c.Score)
	}
	assert.Empty(t, out.Warnings)
	assert.False(t, out.RecallFailed)
}

func TestLocalScorer_ScoresAreBounded(t *testing.T) {
	s := NewLocalScorer(testConfig())
	queries := []model.MatchQuery{
		{Description: "Concrete grade 25 in suspended slabs", Unit: "m3", ContextHeaders: []string{"Concrete Works", "Slabs", "Suspended concrete grade"}},
		{Description: "ceramic floor tiles", Unit: "sqm", Code: "FIN-220"},
		{Description: "!!!", Unit: "m"},
		{Description: "guard rail GW001", Unit: "m"},
	}

	for _, q := range queries {
		out, err := s.Score(context.Background(), q, testCatalog())
		require.NoError(t, err)
		for _, c := range out.Candidates {
			assert.GreaterOrEqual(t, c.Score, 0.0)
			assert.LessOrEqual(t, c.Score, 1.0)
		}
	}
}

func TestLocalScorer_ExactCode(t *testing.T) {
	s := NewLocalScorer(testConfig())
	query := model.MatchQuery{Description: "something unrelated", Code: "gw001"}

	out, err := s.Score(context.Background(), query, testCatalog())
	require.NoError(t, err)
	require.NotEmpty(t, out.Candidates)

	top := out.Candidates[0]
	assert.Equal(t, "GW001", top.Item.Code)
	assert.InDelta(t, 1.0, top.Score, 1e-9)
	assert.True(t, top.Breakdown.ExactMatch)
}

func TestLocalScorer_CodeInDescription(t *testing.T) {
	s := NewLocalScorer(testConfig())
	query := model.MatchQuery{Description: "Item ref EL104 as per drawings"}

	out, err := s.Score(context.Background(), query, testCatalog())
	require.NoError(t, err)
	require.NotEmpty(t, out.Candidates)

	assert.Equal(t, "EL-104", out.Candidates[0].Item.Code)
	assert.True(t, out.Candidates[0].Breakdown.ExactMatch)
}

func TestLocalScorer_CodeFragment(t *testing.T) {
	s := NewLocalScorer(testConfig())
	query := model.MatchQuery{Description: "tiles", Code: "FIN-22"}

	out, err := s.Score(context.Background(), query, testCatalog())
	require.NoError(t, err)
	require.NotEmpty(t, out.Candidates)

	top := out.Candidates[0]
	assert.Equal(t, "FIN-220", top.Item.Code)
	assert.True(t, top.Breakdown.CodeMatch)
	assert.False(t, top.Breakdown.ExactMatch)
	assert.GreaterOrEqual(t, top.Score, 0.95)
}

func TestLocalScorer_UnitBonusIsAdditive(t *testing.T) {
	s := NewLocalScorer(testConfig())
	item := []model.PriceItem{{Code: "T1", Description: "Ceramic floor tiles 300x300mm", Unit: "m2"}}

	matching, err := s.Score(context.Background(), model.MatchQuery{Description: "ceramic wall tiles", Unit: "sqm"}, item)
	require.NoError(t, err)
	other, err := s.Score(context.Background(), model.MatchQuery{Description: "ceramic wall tiles", Unit: "nr"}, item)
	require.NoError(t, err)

	require.Len(t, matching.Candidates, 1)
	require.Len(t, other.Candidates, 1)
	assert.InDelta(t, 0.25, matching.Candidates[0].Breakdown.UnitBonus, 1e-9)
	assert.InDelta(t, 0.0, other.Candidates[0].Breakdown.UnitBonus, 1e-9)
	assert.InDelta(t, 0.25, matching.Candidates[0].Score-other.Candidates[0].Score, 1e-9)
}

func TestLocalScorer_ContextBonuses(t *testing.T) {
	s := NewLocalScorer(testConfig())

	t.Run("category and context", func(t *testing.T) {
		query := model.MatchQuery{
			Description:    "4mm2 cable",
			ContextHeaders: []string{"Electrical", "Armoured"},
		}
		out, err := s.Score(context.Background(), query, testCatalog())
		require.NoError(t, err)
		require.NotEmpty(t, out.Candidates)

		bd := out.Candidates[0].Breakdown
		assert.Equal(t, "EL-104", out.Candidates[0].Item.Code)
		assert.InDelta(t, 0.2, bd.CategoryBonus, 1e-9)
		assert.InDelta(t, 0.1, bd.ContextBonus, 1e-9)
	})

	t.Run("context bonus is capped", func(t *testing.T) {
		item := []model.PriceItem{{Code: "S1", Description: "concrete slab beam column footing works", Category: "Structures"}}
		query := model.MatchQuery{
			Description:    "formwork",
			ContextHeaders: []string{"Concrete", "Slab Beam", "Column Footing"},
		}
		out, err := s.Score(context.Background(), query, item)
		require.NoError(t, err)
		require.Len(t, out.Candidates, 1)
		assert.InDelta(t, 0.3, out.Candidates[0].Breakdown.ContextBonus, 1e-9)
		assert.InDelta(t, 0.0, out.Candidates[0].Breakdown.CategoryBonus, 1e-9)
	})
}

func TestLocalScorer_EmptyInputs(t *testing.T) {
	s := NewLocalScorer(testConfig())

	out, err := s.Score(context.Background(), model.MatchQuery{Description: "cable"}, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Candidates)

	items := []model.PriceItem{{Code: "T1", Description: "Ceramic floor tiles", Unit: "m2"}}
	out, err = s.Score(context.Background(), model.MatchQuery{Description: "", Unit: "m2"}, items)
	require.NoError(t, err)
	require.Len(t, out.Candidates, 1)
	assert.InDelta(t, 0.0, out.Candidates[0].Breakdown.TextSimilarity, 1e-9)
	assert.InDelta(t, 0.25, out.Candidates[0].Score, 1e-9)
}

func TestLocalScorer_StableTies(t *testing.T) {
	s := NewLocalScorer(testConfig())
	items := []model.PriceItem{
		{Code: "A", Description: "Blockwork wall 200mm"},
		{Code: "B", Description: "Blockwork wall 200mm"},
		{Code: "C", Description: "Blockwork wall 200mm"},
	}

	out, err := s.Score(context.Background(), model.MatchQuery{Description: "blockwork wall 200mm"}, items)
	require.NoError(t, err)
	require.Len(t, out.Candidates, 3)
	assert.Equal(t, "A", out.Candidates[0].Item.Code)
	assert.Equal(t, "B", out.Candidates[1].Item.Code)
	assert.Equal(t, "C", out.Candidates[2].Item.Code)
}

func TestLocalScorer_AbbreviationsHelp(t *testing.T) {
	s := NewLocalScorer(testConfig())
	items := []model.PriceItem{
		{Code: "X1", Description: "Excavation for foundations"},
		{Code: "X2", Description: "Painting to walls"},
	}

	out, err := s.Score(context.Background(), model.MatchQuery{Description: "exc for foundations"}, items)
	require.NoError(t, err)
	require.NotEmpty(t, out.Candidates)
	assert.Equal(t, "X1", out.Candidates[0].Item.Code)
}

func TestLocalScorer_Cancelled(t *testing.T) {
	s := NewLocalScorer(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Score(ctx, model.MatchQuery{Description: "cable"}, testCatalog())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalScorer_Prefilter(t *testing.T) {
	s := NewLocalScorer(testConfig())

	got, err := s.Prefilter(context.Background(), model.MatchQuery{Description: "excavation trenches"}, testCatalog(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "EXC-010", got[0].Code)

	all, err := s.Prefilter(context.Background(), model.MatchQuery{Description: "x"}, testCatalog(), 10)
	require.NoError(t, err)
	assert.Len(t, all, len(testCatalog()))
}

func TestLocalScorer_SiblingCodeIsNotAMatch(t *testing.T) {
	s := NewLocalScorer(testConfig())
	query := model.MatchQuery{Description: "guard rail", Code: "GW002"}

	out, err := s.Score(context.Background(), query, testCatalog())
	require.NoError(t, err)

	for _, c := range out.Candidates {
		assert.False(t, c.Breakdown.CodeMatch, c.Item.Code)
		assert.False(t, c.Breakdown.ExactMatch, c.Item.Code)
		assert.Less(t, c.Score, 0.95, c.Item.Code)
	}
}

func TestLocalScorer_GradeInDescriptionIsNotACode(t *testing.T) {
	s := NewLocalScorer(testConfig())
	items := []model.PriceItem{
		{Code: "C2501", Description: "Copper pipe 15mm", Unit: "m"},
		{Code: "CON-025", Description: "Concrete grade 25 in suspended slabs", Unit: "m3"},
	}

	out, err := s.Score(context.Background(), model.MatchQuery{Description: "Blinding concrete C25 below foundations", Unit: "m3"}, items)
	require.NoError(t, err)
	require.NotEmpty(t, out.Candidates)

	assert.Equal(t, "CON-025", out.Candidates[0].Item.Code)
	for _, c := range out.Candidates {
		assert.False(t, c.Breakdown.CodeMatch, c.Item.Code)
	}
}

func TestCodeRelation(t *testing.T) {
	tests := []struct {
		name  string
		query model.MatchQuery
		item  string
		want  codeMatch
	}{
		{name: "explicit exact", query: model.MatchQuery{Code: "el-104"}, item: "EL104", want: codeExact},
		{name: "explicit fragment", query: model.MatchQuery{Code: "FIN-22"}, item: "FIN220", want: codeFragment},
		{name: "item code inside explicit code", query: model.MatchQuery{Code: "A.FIN220"}, item: "FIN220", want: codeFragment},
		{name: "explicit sibling", query: model.MatchQuery{Code: "GW002"}, item: "GW001", want: codeNone},
		{name: "explicit short fragment", query: model.MatchQuery{Code: "GW0"}, item: "GW001", want: codeNone},
		{name: "description exact", query: model.MatchQuery{Description: "ref EL104 and C25 mix"}, item: "EL104", want: codeExact},
		{name: "description fragment", query: model.MatchQuery{Description: "concrete C25 mix"}, item: "C2501", want: codeNone},
		{name: "no item code", query: model.MatchQuery{Code: "GW001"}, item: "", want: codeNone},
		{name: "no query code", query: model.MatchQuery{Description: "guard rail"}, item: "GW001", want: codeNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codeRelation(prepareQuery(tt.query), tt.item))
		})
	}
}

func TestLocalScorer_SpecBonusPrefersMatchingSize(t *testing.T) {
	s := NewLocalScorer(testConfig())
	items := []model.PriceItem{
		{Code: "EL-104", Description: "Armoured cable 4mm2 2 core XLPE/SWA", Unit: "m"},
		{Code: "EL-102", Description: "Armoured cable 2.5mm2 2 core XLPE/SWA", Unit: "m"},
	}

	out, err := s.Score(context.Background(), model.MatchQuery{Description: "2.5mm2 armoured cable 2 core", Unit: "m"}, items)
	require.NoError(t, err)
	require.Len(t, out.Candidates, 2)

	assert.Equal(t, "EL-102", out.Candidates[0].Item.Code)
	assert.InDelta(t, 0.1, out.Candidates[0].Breakdown.SpecBonus, 1e-9)
	assert.InDelta(t, 0.0, out.Candidates[1].Breakdown.SpecBonus, 1e-9)
	assert.Greater(t, out.Candidates[0].Score, out.Candidates[1].Score)
}

func TestLocalScorer_UnitsCompareByCanonicalCode(t *testing.T) {
	s := NewLocalScorer(testConfig())
	items := []model.PriceItem{
		{Code: "T1", Description: "Ceramic floor tiles", Unit: "Sq.m"},
		{Code: "T2", Description: "Ceramic floor tiles"},
	}

	out, err := s.Score(context.Background(), model.MatchQuery{Description: "ceramic floor tiles", Unit: "m2"}, items)
	require.NoError(t, err)
	require.Len(t, out.Candidates, 2)

	byCode := map[string]model.ScoreBreakdown{}
	for _, c := range out.Candidates {
		byCode[c.Item.Code] = c.Breakdown
	}
	assert.InDelta(t, 0.25, byCode["T1"].UnitBonus, 1e-9)
	assert.InDelta(t, 0.0, byCode["T2"].UnitBonus, 1e-9)
}

func TestItemCache_Bounded(t *testing.T) {
	c := newItemCache(2)
	a := model.PriceItem{Code: "A", Description: "Blockwork wall 100mm"}
	b := model.PriceItem{Code: "B", Description: "Blockwork wall 150mm"}
	d := model.PriceItem{Code: "D", Description: "Blockwork wall 200mm"}

	first := c.get(a)
	assert.Same(t, first, c.get(a))

	c.get(b)
	c.get(d)
	assert.Equal(t, 2, c.len())
	assert.NotSame(t, first, c.get(a))

	assert.NotNil(t, newItemCache(0).lru)
}
