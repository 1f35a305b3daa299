package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Veraticus/boq-price-match/internal/common"
)

// ErrNoProvider is returned when the adapter has no client for the requested
// operation.
var ErrNoProvider = errors.New("no provider configured")

// AdapterOptions configures an Adapter.
type AdapterOptions struct {
	Logger            *slog.Logger
	Retry             common.RetryPolicy
	Timeout           time.Duration
	CacheTTL          time.Duration
	BatchSize         int
	CacheSize         int
	RequestsPerMinute int
	CacheEnabled      bool
}

// Adapter is the uniform entry point to a provider pair. It is safe for
// concurrent use.
type Adapter struct {
	embedder  Embedder
	reranker  Reranker
	cache     *expirable.LRU[string, []float32]
	limiter   *rateLimiter
	logger    *slog.Logger
	retry     common.RetryPolicy
	timeout   time.Duration
	batchSize int
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewAdapter wraps an embedder and a reranker; either may be nil when the
// method does not need it. Call Close when done.
func NewAdapter(e Embedder, r Reranker, opts AdapterOptions) *Adapter {
	a := &Adapter{
		embedder:  e,
		reranker:  r,
		limiter:   newRateLimiter(opts.RequestsPerMinute),
		logger:    common.LoggerOrDefault(opts.Logger),
		retry:     opts.Retry,
		timeout:   opts.Timeout,
		batchSize: opts.BatchSize,
	}
	if a.retry.Logger == nil {
		a.retry.Logger = a.logger
	}
	if a.timeout <= 0 {
		a.timeout = 30 * time.Second
	}
	if e != nil && (a.batchSize <= 0 || a.batchSize > e.MaxBatchSize()) {
		a.batchSize = e.MaxBatchSize()
	}
	if a.batchSize <= 0 {
		a.batchSize = 1
	}
	if opts.CacheEnabled {
		size := opts.CacheSize
		if size <= 0 {
			size = 10000
		}
		a.cache = expirable.NewLRU[string, []float32](size, nil, opts.CacheTTL)
	}
	return a
}

// EmbedderName returns the embedding provider name, or "".
func (a *Adapter) EmbedderName() string {
	if a.embedder == nil {
		return ""
	}
	return a.embedder.Name()
}

// RerankerName returns the rerank provider name, or "".
func (a *Adapter) RerankerName() string {
	if a.reranker == nil {
		return ""
	}
	return a.reranker.Name()
}

// CacheStats reports embedding cache hits and misses since creation.
func (a *Adapter) CacheStats() (hits, misses int64) {
	return a.hits.Load(), a.misses.Load()
}

var whitespace = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func (a *Adapter) cacheKey(purpose Purpose, text string) string {
	norm := strings.Join(strings.Fields(whitespace.Replace(strings.ToLower(text))), " ")
	return a.embedder.Name() + "|" + string(purpose) + "|" + strconv.FormatUint(xxhash.Sum64String(norm), 16)
}

// Embed returns one vector per text, in order. Cached vectors are reused and
// only misses are sent to the provider, split to the provider's batch limit.
func (a *Adapter) Embed(ctx context.Context, texts []string, purpose Purpose) ([][]float32, error) {
	if a.embedder == nil {
		return nil, &common.ProviderError{Provider: "embedding", Op: "embed", Err: ErrNoProvider}
	}
	out := make([][]float32, len(texts))

	// positions of each distinct missing text, in first-seen order
	pending := make(map[string][]int)
	var missKeys []string
	var missTexts []string
	for i, t := range texts {
		key := a.cacheKey(purpose, t)
		if a.cache != nil {
			if v, ok := a.cache.Get(key); ok {
				out[i] = v
				a.hits.Add(1)
				continue
			}
		}
		if _, seen := pending[key]; !seen {
			missKeys = append(missKeys, key)
			missTexts = append(missTexts, t)
		}
		pending[key] = append(pending[key], i)
	}
	a.misses.Add(int64(len(missTexts)))

	for start := 0; start < len(missTexts); start += a.batchSize {
		end := min(start+a.batchSize, len(missTexts))
		chunk := missTexts[start:end]

		var vecs [][]float32
		err := a.call(ctx, a.embedder.Name(), "embed", func(ctx context.Context) error {
			v, err := a.embedder.Embed(ctx, chunk, purpose)
			if err != nil {
				return err
			}
			if len(v) != len(chunk) {
				return &common.ProviderError{
					Provider: a.embedder.Name(),
					Op:       "embed",
					Err:      fmt.Errorf("expected %d embeddings, got %d", len(chunk), len(v)),
				}
			}
			vecs = v
			return nil
		})
		if err != nil {
			return nil, err
		}

		for j, vec := range vecs {
			key := missKeys[start+j]
			if a.cache != nil {
				a.cache.Add(key, vec)
			}
			for _, pos := range pending[key] {
				out[pos] = vec
			}
		}
	}

	a.logger.Debug("Embedded texts",
		"provider", a.embedder.Name(),
		"purpose", purpose,
		"texts", len(texts),
		"misses", len(missTexts))
	return out, nil
}

// Rerank scores docs against query. Results are returned in provider order.
func (a *Adapter) Rerank(ctx context.Context, query string, docs []string) ([]RerankResult, error) {
	if a.reranker == nil {
		return nil, &common.ProviderError{Provider: "rerank", Op: "rerank", Err: ErrNoProvider}
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var results []RerankResult
	err := a.call(ctx, a.reranker.Name(), "rerank", func(ctx context.Context) error {
		r, err := a.reranker.Rerank(ctx, query, docs)
		if err != nil {
			return err
		}
		for _, res := range r {
			if res.Index < 0 || res.Index >= len(docs) {
				return &common.ProviderError{
					Provider: a.reranker.Name(),
					Op:       "rerank",
					Err:      fmt.Errorf("result index %d out of range", res.Index),
				}
			}
		}
		results = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// call runs fn under the rate limiter, the per-call timeout and the retry
// policy. Failures come back as *common.ProviderError.
func (a *Adapter) call(ctx context.Context, provider, op string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.retry.Do(ctx, func(ctx context.Context) error {
		if err := a.limiter.wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &common.ProviderError{
				Provider:  provider,
				Op:        op,
				Err:       fmt.Errorf("timed out after %s: %w", a.timeout, err),
				Retryable: true,
			}
		}
		return err
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var perr *common.ProviderError
	if errors.As(err, &perr) {
		if perr.Provider == provider {
			return err
		}
	}
	return &common.ProviderError{Provider: provider, Op: op, Err: err, Retryable: common.IsRetryable(err)}
}

// Close releases the rate limiter and drops cached vectors.
func (a *Adapter) Close() {
	a.limiter.Close()
	if a.cache != nil {
		a.cache.Purge()
	}
}
