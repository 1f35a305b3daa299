package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptHandler turns SIGINT and SIGTERM into context cancellation with a
// friendly message.
type InterruptHandler struct {
	writer      io.Writer
	signals     chan os.Signal
	jobID       string
	interrupted bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a new interrupt handler.
func NewInterruptHandler(writer io.Writer) *InterruptHandler {
	if writer == nil {
		writer = os.Stdout
	}
	return &InterruptHandler{
		writer:  writer,
		signals: make(chan os.Signal, 1),
	}
}

// HandleInterrupts returns a context that is canceled on the first signal.
// jobID, when set, is mentioned so the user can find the partial job. Call
// stop to release the signal handler.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context, jobID string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	h.jobID = jobID

	signal.Notify(h.signals, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-h.signals:
			h.mu.Lock()
			if !h.interrupted {
				h.interrupted = true
				h.showInterruptMessage()
			}
			h.mu.Unlock()
			cancel()
		case <-ctx.Done():
		}
	}()

	stop := func() {
		signal.Stop(h.signals)
		cancel()
		<-done
	}
	return ctx, stop
}

// showInterruptMessage displays a friendly interrupt message.
func (h *InterruptHandler) showInterruptMessage() {
	msg := "\n\n" + FormatWarning("Matching interrupted! Finishing items in flight...")

	if h.jobID != "" {
		msg += "\n" + FormatInfo("Progress is saved on job "+h.jobID+". Review it with: boq jobs")
	}
	msg += "\n"

	if _, err := fmt.Fprint(h.writer, msg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write interrupt message: %v\n", err)
	}
}

// WasInterrupted returns true if the process was interrupted.
func (h *InterruptHandler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}
