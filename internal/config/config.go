package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

// MinConfidence holds the minimum score a candidate needs to be chosen, per
// method kind.
type MinConfidence struct {
	Local     float64 `mapstructure:"local" validate:"gte=0,lte=1"`
	Embedding float64 `mapstructure:"embedding" validate:"gte=0,lte=1"`
	Hybrid    float64 `mapstructure:"hybrid" validate:"gte=0,lte=1"`
	Rerank    float64 `mapstructure:"rerank" validate:"gte=0,lte=1"`
	Default   float64 `mapstructure:"default" validate:"gte=0,lte=1"`
}

// Thresholds configures scoring bonuses and cut-offs. Bonus values are on a
// 0-100 scale.
type Thresholds struct {
	MinConfidence      MinConfidence `mapstructure:"minconfidence"`
	ReviewFloor        float64       `mapstructure:"reviewfloor" validate:"gte=0,lte=1"`
	UnitMatchBonus     int           `mapstructure:"unitmatchbonus" validate:"gte=0,lte=100"`
	CategoryMatchBonus int           `mapstructure:"categorymatchbonus" validate:"gte=0,lte=100"`
	ContextMatchBonus  int           `mapstructure:"contextmatchbonus" validate:"gte=0,lte=100"`
	SpecMatchBonus     int           `mapstructure:"specmatchbonus" validate:"gte=0,lte=100"`
	CodeMatchScore     int           `mapstructure:"codematchscore" validate:"gte=0,lte=100"`
	ExactMatchScore    int           `mapstructure:"exactmatchscore" validate:"gte=0,lte=100"`
}

// Weights scales the base similarity of each method kind.
type Weights struct {
	Local     float64 `mapstructure:"local" validate:"gte=0,lte=2"`
	Embedding float64 `mapstructure:"embedding" validate:"gte=0,lte=2"`
	Hybrid    float64 `mapstructure:"hybrid" validate:"gte=0,lte=2"`
	Rerank    float64 `mapstructure:"rerank" validate:"gte=0,lte=2"`
}

// Caching configures the embedding cache.
type Caching struct {
	TTL     time.Duration `mapstructure:"ttl" validate:"gt=0"`
	MaxSize int           `mapstructure:"maxsize" validate:"gte=100"`
	Enabled bool          `mapstructure:"enabled"`
}

// Retry configures the provider retry policy.
type Retry struct {
	Delay             time.Duration `mapstructure:"delay" validate:"gte=0"`
	MaxDelay          time.Duration `mapstructure:"maxdelay" validate:"gte=0"`
	MaxAttempts       int           `mapstructure:"maxattempts" validate:"gte=1,lte=10"`
	BackoffMultiplier float64       `mapstructure:"backoffmultiplier" validate:"gte=1"`
}

// Policy converts the settings into a common.RetryPolicy.
func (r Retry) Policy() common.RetryPolicy {
	return common.RetryPolicy{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.Delay,
		MaxDelay:     r.MaxDelay,
		Multiplier:   r.BackoffMultiplier,
	}
}

// Performance configures batch processing.
type Performance struct {
	ItemProcessingTimeout time.Duration `mapstructure:"itemprocessingtimeout" validate:"gt=0"`
	ProviderTimeout       time.Duration `mapstructure:"providertimeout" validate:"gt=0"`
	BatchProcessingDelay  time.Duration `mapstructure:"batchprocessingdelay" validate:"gte=0"`
	MaxFailureRate        float64       `mapstructure:"maxfailurerate" validate:"gt=0,lte=1"`
	MaxConcurrentMatches  int           `mapstructure:"maxconcurrentmatches" validate:"gte=1,lte=100"`
	MinBatchSize          int           `mapstructure:"minbatchsize" validate:"gte=1"`
	MaxBatchSize          int           `mapstructure:"maxbatchsize" validate:"gtefield=MinBatchSize"`
	InitialBatchSize      int           `mapstructure:"initialbatchsize" validate:"gte=1"`
	FailureSampleSize     int           `mapstructure:"failuresamplesize" validate:"gte=1"`
	AdaptiveBatchSize     bool          `mapstructure:"adaptivebatchsize"`
}

// Limits bounds inputs and outputs of a single match.
type Limits struct {
	MaxReturnedMatches   int `mapstructure:"maxreturnedmatches" validate:"gte=1,lte=50"`
	MaxContextHeaders    int `mapstructure:"maxcontextheaders" validate:"gte=0"`
	MaxDescriptionLength int `mapstructure:"maxdescriptionlength" validate:"gte=10"`
}

// Embedding configures provider batching and rate limits.
type Embedding struct {
	BatchSize map[string]int `mapstructure:"batchsize"`
	RateLimit int            `mapstructure:"ratelimit" validate:"gte=0"`
}

// Hybrid configures the two-stage scorer.
type Hybrid struct {
	ShortlistSize        int `mapstructure:"shortlistsize" validate:"gte=1"`
	DirectRerankMaxItems int `mapstructure:"directrerankmaxitems" validate:"gte=1"`
}

// Learning configures the pattern learner.
type Learning struct {
	Threshold float64 `mapstructure:"threshold" validate:"gte=0,lte=1"`
	Enabled   bool    `mapstructure:"enabled"`
}

// Fallback configures degraded-mode behavior.
type Fallback struct {
	ToLocal bool `mapstructure:"tolocal"`
}

// Catalog configures the price list cache.
type Catalog struct {
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// Provider holds credentials and endpoint overrides for one provider.
// Credentials are opaque and never persisted.
type Provider struct {
	APIKey  string `mapstructure:"apikey"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"baseurl"`
}

// Config is the full matching configuration.
type Config struct {
	Providers   map[string]Provider `mapstructure:"providers"`
	Embedding   Embedding           `mapstructure:"embedding"`
	Thresholds  Thresholds          `mapstructure:"thresholds"`
	Weights     Weights             `mapstructure:"weights"`
	Retry       Retry               `mapstructure:"retry"`
	Performance Performance         `mapstructure:"performance"`
	Caching     Caching             `mapstructure:"caching"`
	Limits      Limits              `mapstructure:"limits"`
	Hybrid      Hybrid              `mapstructure:"hybrid"`
	Catalog     Catalog             `mapstructure:"catalog"`
	Learning    Learning            `mapstructure:"learning"`
	Fallback    Fallback            `mapstructure:"fallback"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Thresholds: Thresholds{
			MinConfidence: MinConfidence{
				Local:     0.35,
				Embedding: 0.45,
				Hybrid:    0.45,
				Rerank:    0.4,
				Default:   0.4,
			},
			ReviewFloor:        0.1,
			UnitMatchBonus:     25,
			CategoryMatchBonus: 20,
			ContextMatchBonus:  10,
			SpecMatchBonus:     10,
			CodeMatchScore:     95,
			ExactMatchScore:    100,
		},
		Weights: Weights{Local: 0.7, Embedding: 1.0, Hybrid: 1.0, Rerank: 1.0},
		Caching: Caching{Enabled: true, TTL: time.Hour, MaxSize: 10000},
		Retry: Retry{
			MaxAttempts:       3,
			Delay:             time.Second,
			BackoffMultiplier: 2,
			MaxDelay:          10 * time.Second,
		},
		Performance: Performance{
			MaxConcurrentMatches:  10,
			ItemProcessingTimeout: 30 * time.Second,
			ProviderTimeout:       8 * time.Second,
			BatchProcessingDelay:  100 * time.Millisecond,
			AdaptiveBatchSize:     true,
			MinBatchSize:          5,
			MaxBatchSize:          20,
			InitialBatchSize:      10,
			MaxFailureRate:        0.5,
			FailureSampleSize:     10,
		},
		Limits: Limits{MaxReturnedMatches: 5, MaxContextHeaders: 10, MaxDescriptionLength: 500},
		Embedding: Embedding{
			BatchSize: map[string]int{
				model.ProviderCohere:    96,
				model.ProviderOpenAI:    100,
				model.ProviderGemini:    100,
				model.ProviderDeepInfra: 64,
			},
			RateLimit: 600,
		},
		Hybrid:   Hybrid{ShortlistSize: 30, DirectRerankMaxItems: 300},
		Learning: Learning{Enabled: true, Threshold: 0.8},
		Fallback: Fallback{ToLocal: true},
		Catalog:  Catalog{TTL: 5 * time.Minute},
		Providers: map[string]Provider{},
	}
}

// SetDefaults registers the defaults on v so that environment variables and
// config files can override individual keys.
func SetDefaults(v *viper.Viper) {
	d := Default()
	t := d.Thresholds
	v.SetDefault("thresholds.minconfidence.local", t.MinConfidence.Local)
	v.SetDefault("thresholds.minconfidence.embedding", t.MinConfidence.Embedding)
	v.SetDefault("thresholds.minconfidence.hybrid", t.MinConfidence.Hybrid)
	v.SetDefault("thresholds.minconfidence.rerank", t.MinConfidence.Rerank)
	v.SetDefault("thresholds.minconfidence.default", t.MinConfidence.Default)
	v.SetDefault("thresholds.reviewfloor", t.ReviewFloor)
	v.SetDefault("thresholds.unitmatchbonus", t.UnitMatchBonus)
	v.SetDefault("thresholds.categorymatchbonus", t.CategoryMatchBonus)
	v.SetDefault("thresholds.contextmatchbonus", t.ContextMatchBonus)
	v.SetDefault("thresholds.specmatchbonus", t.SpecMatchBonus)
	v.SetDefault("thresholds.codematchscore", t.CodeMatchScore)
	v.SetDefault("thresholds.exactmatchscore", t.ExactMatchScore)

	v.SetDefault("weights.local", d.Weights.Local)
	v.SetDefault("weights.embedding", d.Weights.Embedding)
	v.SetDefault("weights.hybrid", d.Weights.Hybrid)
	v.SetDefault("weights.rerank", d.Weights.Rerank)

	v.SetDefault("caching.enabled", d.Caching.Enabled)
	v.SetDefault("caching.ttl", d.Caching.TTL)
	v.SetDefault("caching.maxsize", d.Caching.MaxSize)

	v.SetDefault("retry.maxattempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.delay", d.Retry.Delay)
	v.SetDefault("retry.backoffmultiplier", d.Retry.BackoffMultiplier)
	v.SetDefault("retry.maxdelay", d.Retry.MaxDelay)

	p := d.Performance
	v.SetDefault("performance.maxconcurrentmatches", p.MaxConcurrentMatches)
	v.SetDefault("performance.itemprocessingtimeout", p.ItemProcessingTimeout)
	v.SetDefault("performance.providertimeout", p.ProviderTimeout)
	v.SetDefault("performance.batchprocessingdelay", p.BatchProcessingDelay)
	v.SetDefault("performance.adaptivebatchsize", p.AdaptiveBatchSize)
	v.SetDefault("performance.minbatchsize", p.MinBatchSize)
	v.SetDefault("performance.maxbatchsize", p.MaxBatchSize)
	v.SetDefault("performance.initialbatchsize", p.InitialBatchSize)
	v.SetDefault("performance.maxfailurerate", p.MaxFailureRate)
	v.SetDefault("performance.failuresamplesize", p.FailureSampleSize)

	v.SetDefault("limits.maxreturnedmatches", d.Limits.MaxReturnedMatches)
	v.SetDefault("limits.maxcontextheaders", d.Limits.MaxContextHeaders)
	v.SetDefault("limits.maxdescriptionlength", d.Limits.MaxDescriptionLength)

	for name, size := range d.Embedding.BatchSize {
		v.SetDefault("embedding.batchsize."+name, size)
	}
	v.SetDefault("embedding.ratelimit", d.Embedding.RateLimit)

	v.SetDefault("hybrid.shortlistsize", d.Hybrid.ShortlistSize)
	v.SetDefault("hybrid.directrerankmaxitems", d.Hybrid.DirectRerankMaxItems)
	v.SetDefault("learning.enabled", d.Learning.Enabled)
	v.SetDefault("learning.threshold", d.Learning.Threshold)
	v.SetDefault("fallback.tolocal", d.Fallback.ToLocal)
	v.SetDefault("catalog.ttl", d.Catalog.TTL)
}

// Load reads the configuration from v on top of the defaults and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]Provider{}
	}
	if err := cfg.applyOverrides(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// credentialEnv maps providers to the conventional environment variables
// holding their API keys.
var credentialEnv = map[string]string{
	model.ProviderCohere:    "COHERE_API_KEY",
	model.ProviderOpenAI:    "OPENAI_API_KEY",
	model.ProviderGemini:    "GEMINI_API_KEY",
	model.ProviderDeepInfra: "DEEPINFRA_API_KEY",
}

func (c *Config) applyOverrides(getenv func(string) string) error {
	if raw := getenv("BOQ_MATCHING_MIN_CONFIDENCE"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%w: BOQ_MATCHING_MIN_CONFIDENCE: %w", common.ErrInvalidConfig, err)
		}
		c.Thresholds.MinConfidence = MinConfidence{Local: v, Embedding: v, Hybrid: v, Rerank: v, Default: v}
	}
	for name, env := range credentialEnv {
		p := c.Providers[name]
		if p.APIKey == "" {
			p.APIKey = strings.TrimSpace(getenv(env))
		}
		c.Providers[name] = p
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks ranges and cross-field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	for name, size := range c.Embedding.BatchSize {
		if size <= 0 {
			return fmt.Errorf("%w: embedding batch size for %s must be positive", common.ErrInvalidConfig, name)
		}
	}
	return nil
}

// RetryBudget is the longest a provider call can take with every retry
// attempt timing out: the per-attempt timeouts plus the backoff between them.
func (c Config) RetryBudget() time.Duration {
	budget := time.Duration(c.Retry.MaxAttempts) * c.Performance.ProviderTimeout
	delay := c.Retry.Delay
	for i := 1; i < c.Retry.MaxAttempts; i++ {
		if c.Retry.MaxDelay > 0 && delay > c.Retry.MaxDelay {
			delay = c.Retry.MaxDelay
		}
		budget += delay
		delay = time.Duration(float64(delay) * c.Retry.BackoffMultiplier)
	}
	return budget
}

// MinConfidenceFor returns the selection threshold for kind.
func (c Config) MinConfidenceFor(kind model.MethodKind) float64 {
	m := c.Thresholds.MinConfidence
	switch kind {
	case model.KindLocal:
		return m.Local
	case model.KindEmbedding:
		return m.Embedding
	case model.KindHybrid:
		return m.Hybrid
	case model.KindDirectRerank:
		return m.Rerank
	default:
		return m.Default
	}
}

// WeightFor returns the base-similarity multiplier for kind.
func (c Config) WeightFor(kind model.MethodKind) float64 {
	switch kind {
	case model.KindLocal:
		return c.Weights.Local
	case model.KindEmbedding:
		return c.Weights.Embedding
	case model.KindHybrid:
		return c.Weights.Hybrid
	case model.KindDirectRerank:
		return c.Weights.Rerank
	default:
		return 1.0
	}
}

// BatchSizeFor returns the max embedding batch for provider, or fallback when
// none is configured.
func (c Config) BatchSizeFor(provider string, fallback int) int {
	if size, ok := c.Embedding.BatchSize[provider]; ok && size > 0 {
		return size
	}
	return fallback
}
