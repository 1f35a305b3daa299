package batch

import (
	"log/slog"
	"time"
)

const (
	sizerHistory       = 10
	sizerWindow        = 5
	sizerMinSamples    = 3
	sizerStep          = 2
	sizerBand          = 0.2
	defaultItemLatency = 500 * time.Millisecond
)

// sizer picks the next batch size from recent per-item latency. One sizer
// belongs to one job.
type sizer struct {
	logger   *slog.Logger
	history  []time.Duration
	target   time.Duration
	current  int
	min      int
	max      int
	adaptive bool
}

func newSizer(initial, minSize, maxSize int, target time.Duration, adaptive bool, logger *slog.Logger) *sizer {
	if minSize < 1 {
		minSize = 1
	}
	if maxSize < minSize {
		maxSize = minSize
	}
	initial = max(minSize, min(initial, maxSize))
	if target <= 0 {
		target = defaultItemLatency
	}
	return &sizer{
		logger:   logger,
		target:   target,
		current:  initial,
		min:      minSize,
		max:      maxSize,
		adaptive: adaptive,
	}
}

// next returns the size for the upcoming batch.
func (s *sizer) next() int {
	if !s.adaptive || len(s.history) < sizerMinSamples {
		return s.current
	}

	window := s.history
	if len(window) > sizerWindow {
		window = window[len(window)-sizerWindow:]
	}
	var sum time.Duration
	for _, d := range window {
		sum += d
	}
	avg := sum / time.Duration(len(window))

	prev := s.current
	switch {
	case float64(avg) < float64(s.target)*(1-sizerBand):
		s.current = min(s.current+sizerStep, s.max)
	case float64(avg) > float64(s.target)*(1+sizerBand):
		s.current = max(s.current-sizerStep, s.min)
	}
	if s.current != prev {
		s.logger.Debug("Adjusted batch size",
			"from", prev,
			"to", s.current,
			"avg_item_latency", avg)
	}
	return s.current
}

// record notes how long a batch of n items took.
func (s *sizer) record(n int, elapsed time.Duration) {
	if n <= 0 {
		return
	}
	s.history = append(s.history, elapsed/time.Duration(n))
	if len(s.history) > sizerHistory {
		s.history = s.history[len(s.history)-sizerHistory:]
	}
}
