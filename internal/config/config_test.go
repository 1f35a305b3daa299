package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 25, cfg.Thresholds.UnitMatchBonus)
	assert.Equal(t, 100, cfg.Thresholds.ExactMatchScore)
	assert.Equal(t, 10, cfg.Thresholds.SpecMatchBonus)
	assert.InDelta(t, 0.7, cfg.WeightFor(model.KindLocal), 1e-9)
	assert.Equal(t, 96, cfg.BatchSizeFor(model.ProviderCohere, 1))
	assert.Equal(t, 7, cfg.BatchSizeFor("unknown", 7))
}

func TestLoad_FromYAML(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
thresholds:
  minConfidence:
    local: 0.5
  unitMatchBonus: 30
performance:
  maxConcurrentMatches: 4
  itemProcessingTimeout: 2s
providers:
  cohere:
    apiKey: from-file
`)))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, cfg.MinConfidenceFor(model.KindLocal), 1e-9)
	assert.InDelta(t, 0.45, cfg.MinConfidenceFor(model.KindHybrid), 1e-9)
	assert.Equal(t, 30, cfg.Thresholds.UnitMatchBonus)
	assert.Equal(t, 4, cfg.Performance.MaxConcurrentMatches)
	assert.Equal(t, 2*time.Second, cfg.Performance.ItemProcessingTimeout)
	assert.Equal(t, "from-file", cfg.Providers[model.ProviderCohere].APIKey)
}

func TestRetryBudget(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 27*time.Second, cfg.RetryBudget())
	assert.LessOrEqual(t, cfg.RetryBudget(), cfg.Performance.ItemProcessingTimeout)

	cfg.Retry = Retry{MaxAttempts: 4, Delay: time.Second, BackoffMultiplier: 3, MaxDelay: 5 * time.Second}
	cfg.Performance.ProviderTimeout = time.Second
	// 4 attempts plus 1s, 3s and a capped 5s of backoff.
	assert.Equal(t, 13*time.Second, cfg.RetryBudget())
}

func TestApplyOverrides(t *testing.T) {
	env := map[string]string{
		"BOQ_MATCHING_MIN_CONFIDENCE": "0.6",
		"OPENAI_API_KEY":              " sk-test ",
	}
	cfg := Default()
	require.NoError(t, cfg.applyOverrides(func(k string) string { return env[k] }))

	for _, kind := range []model.MethodKind{model.KindLocal, model.KindEmbedding, model.KindHybrid, model.KindDirectRerank, 0} {
		assert.InDelta(t, 0.6, cfg.MinConfidenceFor(kind), 1e-9, kind.String())
	}
	assert.Equal(t, "sk-test", cfg.Providers[model.ProviderOpenAI].APIKey)

	bad := Default()
	err := bad.applyOverrides(func(k string) string {
		if k == "BOQ_MATCHING_MIN_CONFIDENCE" {
			return "high"
		}
		return ""
	})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		mutate func(*Config)
		name   string
	}{
		{name: "confidence above one", mutate: func(c *Config) { c.Thresholds.MinConfidence.Local = 1.2 }},
		{name: "weight above two", mutate: func(c *Config) { c.Weights.Hybrid = 2.5 }},
		{name: "tiny cache", mutate: func(c *Config) { c.Caching.MaxSize = 10 }},
		{name: "batch bounds inverted", mutate: func(c *Config) { c.Performance.MaxBatchSize = 2 }},
		{name: "zero batch size", mutate: func(c *Config) { c.Embedding.BatchSize["cohere"] = 0 }},
		{name: "no concurrency", mutate: func(c *Config) { c.Performance.MaxConcurrentMatches = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), common.ErrInvalidConfig)
		})
	}
}

func TestDatabasePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("BOQ_TEST_DIR", "/srv/boq")

	tests := []struct {
		name       string
		configured string
		dataHome   string
		expected   string
	}{
		{name: "default", expected: filepath.Join(home, ".local/share/boq/boq.db")},
		{name: "xdg data home", dataHome: "/data", expected: "/data/boq/boq.db"},
		{name: "tilde", configured: "~/prices.db", expected: filepath.Join(home, "prices.db")},
		{name: "env var", configured: "$BOQ_TEST_DIR/boq.db", expected: "/srv/boq/boq.db"},
		{name: "absolute", configured: "/tmp/x.db", dataHome: "/data", expected: "/tmp/x.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_DATA_HOME", tt.dataHome)
			assert.Equal(t, tt.expected, DatabasePath(tt.configured))
		})
	}
}
