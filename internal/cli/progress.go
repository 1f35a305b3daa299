package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/boq-price-match/internal/batch"
	"github.com/Veraticus/boq-price-match/internal/model"
)

// ProgressBarSink draws match job progress in the terminal.
type ProgressBarSink struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	mu     sync.Mutex
	shown  int
}

// NewProgressBarSink creates a progress bar for a job of total items.
func NewProgressBarSink(writer io.Writer, total int) *ProgressBarSink {
	s := &ProgressBarSink{writer: writer}
	s.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Matching BOQ items...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
	return s
}

// Update implements batch.ProgressSink.
func (s *ProgressBarSink) Update(_ context.Context, p batch.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Processed <= s.shown || p.Status.Terminal() {
		return
	}
	s.shown = p.Processed
	if err := s.bar.Set(p.Processed); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Complete implements batch.ProgressSink.
func (s *ProgressBarSink) Complete(_ context.Context, outcome *batch.JobOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if outcome.Job.Status == model.JobCompleted {
		if err := s.bar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "error", err)
		}
		return
	}
	if err := s.bar.Exit(); err != nil {
		slog.Warn("Failed to stop progress bar", "error", err)
	}
	if _, err := fmt.Fprintln(s.writer); err != nil {
		slog.Warn("Failed to write newline after progress bar", "error", err)
	}
}
