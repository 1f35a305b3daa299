// Package batch runs a whole BOQ through the matcher with bounded
// concurrency, adaptive batch sizes and progress reporting.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/config"
	"github.com/Veraticus/boq-price-match/internal/model"
)

// Matcher resolves a single query. *engine.Matcher implements it.
type Matcher interface {
	Match(ctx context.Context, query model.MatchQuery) (*model.MatchResult, error)
}

// Catalog supplies the price list. *engine.CachedCatalog and the stores
// implement it.
type Catalog interface {
	GetAllPriceItems(ctx context.Context) ([]model.PriceItem, error)
}

// Stage messages reported with progress.
const (
	StageQueued   = "queued"
	StageParsing  = "loading catalog"
	StageMatching = "matching"
	StageDone     = "done"
)

// Options tunes a Coordinator.
type Options struct {
	Logger            *slog.Logger
	ItemTimeout       time.Duration
	BatchDelay        time.Duration
	TargetItemLatency time.Duration
	MaxFailureRate    float64
	Concurrency       int
	MinBatchSize      int
	MaxBatchSize      int
	InitialBatchSize  int
	FailureSampleSize int
	Adaptive          bool
}

// OptionsFromConfig maps the performance settings.
func OptionsFromConfig(p config.Performance) Options {
	return Options{
		ItemTimeout:       p.ItemProcessingTimeout,
		BatchDelay:        p.BatchProcessingDelay,
		MaxFailureRate:    p.MaxFailureRate,
		Concurrency:       p.MaxConcurrentMatches,
		MinBatchSize:      p.MinBatchSize,
		MaxBatchSize:      p.MaxBatchSize,
		InitialBatchSize:  p.InitialBatchSize,
		FailureSampleSize: p.FailureSampleSize,
		Adaptive:          p.AdaptiveBatchSize,
	}
}

// JobRequest is one BOQ to match. Items without a method use Method.
type JobRequest struct {
	JobID  string
	Method model.MatchMethod
	Items  []model.MatchQuery
}

// Coordinator runs jobs. It holds no per-job state and may run several jobs
// at once.
type Coordinator struct {
	matcher Matcher
	catalog Catalog
	logger  *slog.Logger
	now     func() time.Time
	opts    Options
}

// NewCoordinator creates a Coordinator. catalog may be nil to skip warming
// the catalog before matching.
func NewCoordinator(matcher Matcher, catalog Catalog, opts Options) *Coordinator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 30 * time.Second
	}
	if opts.MaxFailureRate <= 0 {
		opts.MaxFailureRate = 0.5
	}
	if opts.FailureSampleSize < 1 {
		opts.FailureSampleSize = 10
	}
	if opts.InitialBatchSize < 1 {
		opts.InitialBatchSize = 10
	}
	return &Coordinator{
		matcher: matcher,
		catalog: catalog,
		logger:  common.LoggerOrDefault(opts.Logger),
		now:     time.Now,
		opts:    opts,
	}
}

// itemOutcome is the result of one query inside a batch.
type itemOutcome struct {
	err    error
	result *model.MatchResult
	index  int
}

// jobRun carries the mutable state of one Run call.
type jobRun struct {
	sink     ProgressSink
	logger   *slog.Logger
	job      model.MatchJob
	results  []indexedResult
	failures int
}

type indexedResult struct {
	result model.MatchResult
	index  int
}

// Run processes every item and always returns a terminal outcome. Per-item
// failures are recorded on the job; the job itself fails only on a fatal
// provider error, a failure rate above the configured limit, an unusable
// catalog or cancellation. Cancellation stops new batches from starting;
// items already in flight finish.
func (c *Coordinator) Run(ctx context.Context, req JobRequest, sink ProgressSink) *JobOutcome {
	if sink == nil {
		sink = NopSink{}
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	if req.Method.IsZero() {
		req.Method = model.MethodLocal
	}

	run := &jobRun{
		sink:   sink,
		logger: c.logger.With("job_id", req.JobID),
		job: model.MatchJob{
			ID:        req.JobID,
			Method:    req.Method.String(),
			Status:    model.JobPending,
			Total:     len(req.Items),
			StartedAt: c.now(),
		},
	}
	run.emit(ctx, StageQueued, fmt.Sprintf("Queued %d items", len(req.Items)))

	run.job.Status = model.JobParsing
	run.emit(ctx, StageParsing, "Loading price catalog")
	if err := c.warmCatalog(ctx); err != nil {
		return c.fail(ctx, run, err)
	}

	run.job.Status = model.JobMatching
	run.emit(ctx, StageMatching, fmt.Sprintf("Matching %d items with %s", len(req.Items), req.Method))
	run.logger.Info("Starting match job",
		"items", len(req.Items),
		"method", req.Method.String(),
		"concurrency", c.opts.Concurrency)

	sz := newSizer(c.opts.InitialBatchSize, c.opts.MinBatchSize, c.opts.MaxBatchSize,
		c.opts.TargetItemLatency, c.opts.Adaptive, run.logger)

	for start := 0; start < len(req.Items); {
		if err := ctx.Err(); err != nil {
			return c.fail(ctx, run, fmt.Errorf("%w after %d of %d items: %w",
				common.ErrJobCancelled, run.job.Processed, run.job.Total, err))
		}

		end := min(start+sz.next(), len(req.Items))
		began := c.now()
		outcomes := c.matchBatch(ctx, req, start, end)
		sz.record(end-start, c.now().Sub(began))

		fatal := run.collect(req, outcomes)
		run.job.Processed = end
		run.emit(ctx, StageMatching, fmt.Sprintf("Matched %d of %d items", run.job.Processed, run.job.Total))

		if fatal != nil {
			return c.fail(ctx, run, fmt.Errorf("%w: %w", common.ErrJobAborted, fatal))
		}
		if run.job.Processed >= c.opts.FailureSampleSize {
			rate := float64(run.failures) / float64(run.job.Processed)
			if rate > c.opts.MaxFailureRate {
				return c.fail(ctx, run, fmt.Errorf("%w: %d of %d items failed", common.ErrJobAborted, run.failures, run.job.Processed))
			}
		}

		start = end
		if start < len(req.Items) && c.opts.BatchDelay > 0 {
			select {
			case <-time.After(c.opts.BatchDelay):
			case <-ctx.Done():
			}
		}
	}

	return c.complete(ctx, run)
}

func (c *Coordinator) warmCatalog(ctx context.Context) error {
	if c.catalog == nil {
		return nil
	}
	items, err := c.catalog.GetAllPriceItems(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNoCatalog) {
			return err
		}
		return fmt.Errorf("%w: %w", common.ErrNoCatalog, err)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: no price items imported", common.ErrNoCatalog)
	}
	return nil
}

// matchBatch matches items[start:end]. In-flight items are detached from
// ctx cancellation and bounded by the per-item timeout instead.
func (c *Coordinator) matchBatch(ctx context.Context, req JobRequest, start, end int) []itemOutcome {
	outcomes := make([]itemOutcome, end-start)
	detached := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i := start; i < end; i++ {
		slot := &outcomes[i-start]
		slot.index = i
		q := req.Items[i]
		if q.Method.IsZero() {
			q.Method = req.Method
		}
		g.Go(func() error {
			ictx, cancel := context.WithTimeout(detached, c.opts.ItemTimeout)
			defer cancel()
			slot.result, slot.err = c.matcher.Match(ictx, q)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// collect folds a batch into the job and returns the first fatal provider
// error, if any.
func (r *jobRun) collect(req JobRequest, outcomes []itemOutcome) error {
	var fatal error
	for _, o := range outcomes {
		q := req.Items[o.index]
		if o.err != nil || o.result == nil {
			err := o.err
			if err == nil {
				err = errors.New("matcher returned no result")
			}
			r.failures++
			r.job.Errors = append(r.job.Errors, model.ItemError{
				Row:         q.Row,
				Description: q.Description,
				Message:     err.Error(),
			})
			r.results = append(r.results, indexedResult{index: o.index, result: model.MatchResult{
				Method:          req.Method.String(),
				RequestedMethod: req.Method.String(),
				Row:             q.Row,
				Alternatives:    []model.MatchCandidate{},
				Warnings:        []string{"match failed: " + err.Error()},
			}})
			if fatal == nil && common.IsFatalProvider(err) {
				fatal = err
			}
			r.logger.Warn("Item failed",
				"row", q.Row,
				"error", err)
			continue
		}
		if o.result.ChosenItem != nil {
			r.job.Matched++
		}
		r.results = append(r.results, indexedResult{index: o.index, result: *o.result})
	}
	return fatal
}

func (r *jobRun) emit(ctx context.Context, stage, message string) {
	r.job.Progress = percent(r.job.Processed, r.job.Total)
	if r.job.Status != model.JobCompleted && r.job.Progress == 100 && r.job.Processed < r.job.Total {
		r.job.Progress = 99
	}
	r.job.Message = message
	r.sink.Update(ctx, Progress{
		JobID:     r.job.ID,
		Status:    r.job.Status,
		Stage:     stage,
		Message:   message,
		Processed: r.job.Processed,
		Total:     r.job.Total,
		Percent:   r.job.Progress,
	})
}

// sortedResults orders results by BOQ row, then submission order.
func (r *jobRun) sortedResults() []model.MatchResult {
	sort.SliceStable(r.results, func(i, j int) bool {
		a, b := r.results[i], r.results[j]
		if a.result.Row != b.result.Row {
			return a.result.Row < b.result.Row
		}
		return a.index < b.index
	})
	out := make([]model.MatchResult, len(r.results))
	for i, ir := range r.results {
		out[i] = ir.result
	}
	return out
}

func (c *Coordinator) complete(ctx context.Context, run *jobRun) *JobOutcome {
	done := c.now()
	run.job.Status = model.JobCompleted
	run.job.CompletedAt = &done
	run.emit(ctx, StageDone, fmt.Sprintf("Matched %d of %d items", run.job.Matched, run.job.Total))

	run.logger.Info("Match job completed",
		"items", run.job.Total,
		"matched", run.job.Matched,
		"failed", run.failures,
		"duration", done.Sub(run.job.StartedAt).Round(time.Millisecond))

	outcome := &JobOutcome{Job: run.job, Results: run.sortedResults()}
	run.sink.Complete(ctx, outcome)
	return outcome
}

func (c *Coordinator) fail(ctx context.Context, run *jobRun, err error) *JobOutcome {
	done := c.now()
	run.job.Status = model.JobFailed
	run.job.CompletedAt = &done
	run.emit(ctx, StageDone, err.Error())

	run.logger.Error("Match job failed",
		"processed", run.job.Processed,
		"items", run.job.Total,
		"error", err)

	outcome := &JobOutcome{Err: err, Job: run.job, Results: run.sortedResults()}
	run.sink.Complete(ctx, outcome)
	return outcome
}
