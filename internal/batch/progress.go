package batch

import (
	"context"

	"github.com/Veraticus/boq-price-match/internal/model"
)

// Progress is a snapshot of a running job.
type Progress struct {
	JobID     string          `json:"job_id"`
	Status    model.JobStatus `json:"status"`
	Stage     string          `json:"stage"`
	Message   string          `json:"message"`
	Processed int             `json:"processed"`
	Total     int             `json:"total"`
	Percent   int             `json:"percent"`
}

// JobOutcome is the terminal payload of a job. Job carries the final status,
// counters and per-item errors; Err is set when the job failed as a whole.
type JobOutcome struct {
	Err     error
	Job     model.MatchJob
	Results []model.MatchResult
}

// ProgressSink receives job updates. Implementations must be safe for
// concurrent use and must not block for long.
type ProgressSink interface {
	Update(ctx context.Context, p Progress)
	Complete(ctx context.Context, outcome *JobOutcome)
}

// NopSink discards everything.
type NopSink struct{}

// Update implements ProgressSink.
func (NopSink) Update(context.Context, Progress) {}

// Complete implements ProgressSink.
func (NopSink) Complete(context.Context, *JobOutcome) {}

// MultiSink fans updates out to several sinks in order.
type MultiSink []ProgressSink

// Update implements ProgressSink.
func (m MultiSink) Update(ctx context.Context, p Progress) {
	for _, s := range m {
		if s != nil {
			s.Update(ctx, p)
		}
	}
}

// Complete implements ProgressSink.
func (m MultiSink) Complete(ctx context.Context, outcome *JobOutcome) {
	for _, s := range m {
		if s != nil {
			s.Complete(ctx, outcome)
		}
	}
}

// ChannelSink streams updates over a channel. Updates are dropped rather
// than blocking the coordinator when the consumer falls behind; the terminal
// outcome is always delivered on Done.
type ChannelSink struct {
	updates chan Progress
	done    chan *JobOutcome
}

// NewChannelSink creates a sink with room for buffer pending updates.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{
		updates: make(chan Progress, buffer),
		done:    make(chan *JobOutcome, 1),
	}
}

// Updates returns the progress stream. It is closed after Complete.
func (c *ChannelSink) Updates() <-chan Progress {
	return c.updates
}

// Done yields the outcome once the job is terminal.
func (c *ChannelSink) Done() <-chan *JobOutcome {
	return c.done
}

// Update implements ProgressSink.
func (c *ChannelSink) Update(_ context.Context, p Progress) {
	select {
	case c.updates <- p:
	default:
	}
}

// Complete implements ProgressSink.
func (c *ChannelSink) Complete(_ context.Context, outcome *JobOutcome) {
	c.done <- outcome
	close(c.updates)
	close(c.done)
}

func percent(processed, total int) int {
	if total <= 0 {
		return 100
	}
	return processed * 100 / total
}
