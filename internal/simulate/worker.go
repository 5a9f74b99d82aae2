package simulate

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/waypoint/internal/clock"
)

// Worker advances simulated jobs through their lifecycle.
type Worker struct {
	store  *Store
	clock  clock.Clock
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store *Store, clk clock.Clock, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Worker{
		store:  store,
		clock:  clk,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run advances jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		w.RunOnce()

		if err := clock.Sleep(ctx, w.clock, w.poll); err != nil {
			return
		}
	}
}

// RunOnce advances every job to the current time and returns how many
// changed status.
func (w *Worker) RunOnce() int {
	n := w.store.Advance(w.clock.Now())
	if n > 0 {
		w.logger.Debug("simulated jobs advanced", "changed", n)
	}
	return n
}
