// Package watch observes a remote analysis job until it finishes: a fixed
// interval poller, a controller that verifies the result payload before
// committing, and a bounded-retry loader for jobs that should already be done.
package watch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kalambet/waypoint/internal/analysis"
	"github.com/kalambet/waypoint/internal/clock"
)

// DefaultPollInterval is the delay between status reads of a running job.
const DefaultPollInterval = 3 * time.Second

// Fetcher reads the current state of one job. *analysis.Client satisfies it.
type Fetcher interface {
	Results(ctx context.Context, jobID string) (*analysis.Snapshot, error)
}

// Outcome is the result of one poll: either a snapshot or the fetch error.
type Outcome struct {
	JobID    string
	Attempt  int
	Snapshot *analysis.Snapshot
	Err      error
}

// Terminal reports whether the outcome ends polling.
func (o Outcome) Terminal() bool {
	return o.Err == nil && o.Snapshot.Status().Terminal()
}

// Observer receives every poll outcome of a session, one at a time.
type Observer interface {
	OnSnapshot(Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Outcome)

func (f ObserverFunc) OnSnapshot(o Outcome) { f(o) }

// Poller drives a Fetcher on a fixed interval.
type Poller struct {
	fetcher Fetcher
	clock   clock.Clock
	logger  *slog.Logger
}

// NewPoller creates a Poller. A nil clock uses the real clock and a nil
// logger uses slog.Default().
func NewPoller(fetcher Fetcher, clk clock.Clock, logger *slog.Logger) *Poller {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{fetcher: fetcher, clock: clk, logger: logger}
}

// Session is one live polling binding between a job and an observer.
type Session struct {
	jobID  string
	active atomic.Bool
	gate   gate
	cancel context.CancelFunc
	done   chan struct{}
}

// Start fetches immediately, hands the outcome to obs, and repeats every
// interval until a terminal status is seen, the session is cancelled, or ctx
// is done. Fetch errors are logged and treated as "still running".
func (p *Poller) Start(ctx context.Context, jobID string, obs Observer, interval time.Duration) *Session {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		jobID:  jobID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.active.Store(true)
	go s.run(ctx, p, obs, interval)
	return s
}

// Cancel stops the session. No observer call starts after Cancel returns.
// It may be called from inside the observer. Outcomes that arrive after
// Cancel are discarded.
func (s *Session) Cancel() {
	s.gate.shut(func() {
		s.active.Store(false)
		s.cancel()
	})
}

// Done is closed once the session has stopped and will make no more calls.
func (s *Session) Done() <-chan struct{} { return s.done }

// JobID returns the job this session watches.
func (s *Session) JobID() string { return s.jobID }

func (s *Session) live(ctx context.Context) bool {
	return s.active.Load() && ctx.Err() == nil
}

func (s *Session) run(ctx context.Context, p *Poller, obs Observer, interval time.Duration) {
	defer close(s.done)
	defer s.cancel()

	for attempt := 1; ; attempt++ {
		snap, err := p.fetcher.Results(ctx, s.jobID)
		if !s.live(ctx) {
			return
		}

		out := Outcome{JobID: s.jobID, Attempt: attempt, Snapshot: snap, Err: err}
		if err != nil {
			p.logger.Warn("poll failed", "job_id", s.jobID, "attempt", attempt, "error", err)
		} else {
			p.logger.Debug("poll", "job_id", s.jobID, "attempt", attempt, "status", snap.Status())
		}

		delivered := s.gate.deliver(func() bool { return s.live(ctx) }, func() {
			obs.OnSnapshot(out)
		})
		if !delivered {
			return
		}

		if out.Terminal() {
			s.active.Store(false)
			return
		}
		if !s.live(ctx) {
			return
		}
		if err := clock.Sleep(ctx, p.clock, interval); err != nil {
			return
		}
	}
}
