package watch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kalambet/waypoint/internal/analysis"
	"github.com/kalambet/waypoint/internal/clock"
)

// State is a stage of a watched job's transition towards its results.
type State string

const (
	StateWatching            State = "watching"
	StateCompletionSignaled  State = "completion_signaled"
	StateVerifying           State = "verifying"
	StateCommitted           State = "committed"
	StateCommittedUnverified State = "committed_unverified"
	StateFailed              State = "failed"
)

// Terminal reports whether the transition has finished.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateCommittedUnverified || s == StateFailed
}

// Committed reports whether the transition handed control to the results
// stage, verified or not.
func (s State) Committed() bool {
	return s == StateCommitted || s == StateCommittedUnverified
}

// Update is emitted on every state change of a Transition.
type Update struct {
	JobID    string
	State    State
	Progress float64
	// Attempt and MaxAttempts are set while verifying.
	Attempt     int
	MaxAttempts int
	// Snapshot is the latest snapshot read by the transition.
	Snapshot *analysis.Snapshot
	// Err is a *JobFailedError for StateFailed and ErrVerificationTimeout
	// for StateCommittedUnverified.
	Err error
}

// StateObserver receives Updates in order, never concurrently.
type StateObserver interface {
	OnState(Update)
}

// StateObserverFunc adapts a function to StateObserver.
type StateObserverFunc func(Update)

func (f StateObserverFunc) OnState(u Update) { f(u) }

// VerifyConfig holds the fixed timings of the watch/verify sequence.
type VerifyConfig struct {
	PollInterval time.Duration
	SettleDelay  time.Duration
	RetryDelay   time.Duration
	MaxAttempts  int
}

// DefaultVerifyConfig returns the stock timings.
func DefaultVerifyConfig() VerifyConfig {
	return VerifyConfig{
		PollInterval: DefaultPollInterval,
		SettleDelay:  2 * time.Second,
		RetryDelay:   1500 * time.Millisecond,
		MaxAttempts:  5,
	}
}

func (c VerifyConfig) withDefaults() VerifyConfig {
	d := DefaultVerifyConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = d.SettleDelay
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	return c
}

// Controller watches a job and commits its transition to the results stage
// only after re-reading the payload.
type Controller struct {
	fetcher Fetcher
	poller  *Poller
	clock   clock.Clock
	cfg     VerifyConfig
	logger  *slog.Logger
}

// NewController creates a Controller. A nil clock uses the real clock and a
// nil logger uses slog.Default().
func NewController(fetcher Fetcher, cfg VerifyConfig, clk clock.Clock, logger *slog.Logger) *Controller {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		fetcher: fetcher,
		poller:  NewPoller(fetcher, clk, logger),
		clock:   clk,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Transition is one watch of one job, from polling to a terminal state.
type Transition struct {
	jobID  string
	c      *Controller
	obs    StateObserver
	ctx    context.Context
	cancel context.CancelFunc

	active   atomic.Bool
	signaled atomic.Bool
	session  *Session
	started  chan struct{}

	gate gate
	mu   sync.Mutex
	last   Update

	wg   sync.WaitGroup
	done chan struct{}
}

// Watch starts polling jobID and reports every state change to obs.
func (c *Controller) Watch(ctx context.Context, jobID string, obs StateObserver) *Transition {
	ctx, cancel := context.WithCancel(ctx)
	t := &Transition{
		jobID:   jobID,
		c:       c,
		obs:     obs,
		ctx:     ctx,
		cancel:  cancel,
		last:    Update{JobID: jobID},
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	t.active.Store(true)

	t.emit(Update{JobID: jobID, State: StateWatching})

	t.wg.Add(1)
	t.session = c.poller.Start(ctx, jobID, ObserverFunc(t.onSnapshot), c.cfg.PollInterval)
	close(t.started)
	go func() {
		defer t.wg.Done()
		<-t.session.Done()
	}()
	go func() {
		t.wg.Wait()
		t.cancel()
		close(t.done)
	}()
	return t
}

// Cancel tears the transition down: pending timers are released and no
// update is emitted after Cancel returns. Safe to call from inside the
// observer.
func (t *Transition) Cancel() {
	t.gate.shut(func() {
		t.active.Store(false)
		t.cancel()
	})
}

// Done is closed when the transition reached a terminal state or was
// cancelled, and all of its goroutines have exited.
func (t *Transition) Done() <-chan struct{} { return t.done }

// Result returns the most recent update.
func (t *Transition) Result() Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Wait blocks until the transition is done or ctx ends, and returns the last
// update.
func (t *Transition) Wait(ctx context.Context) (Update, error) {
	select {
	case <-t.done:
		return t.Result(), nil
	case <-ctx.Done():
		return t.Result(), ctx.Err()
	}
}

func (t *Transition) live() bool {
	return t.active.Load() && t.ctx.Err() == nil
}

// emit records u and hands it to the observer unless the transition has been
// torn down or already reached a terminal state.
func (t *Transition) emit(u Update) bool {
	return t.gate.deliver(t.live, func() {
		t.mu.Lock()
		if t.last.State.Terminal() {
			t.mu.Unlock()
			return
		}
		if u.Snapshot == nil {
			u.Snapshot = t.last.Snapshot
		}
		if u.Progress == 0 {
			u.Progress = t.last.Progress
		}
		t.last = u
		t.mu.Unlock()

		if u.State.Terminal() {
			t.active.Store(false)
		}
		if t.obs != nil {
			t.obs.OnState(u)
		}
	})
}

func (t *Transition) onSnapshot(o Outcome) {
	<-t.started
	if !t.live() {
		return
	}
	if o.Err != nil {
		// Transient; keep waiting.
		return
	}

	snap := o.Snapshot
	switch snap.Status() {
	case analysis.StatusFailed:
		t.session.Cancel()
		err := newJobFailedError(t.jobID, snap.ErrorMessage())
		t.c.logger.Warn("analysis failed", "job_id", t.jobID, "error", err.Message)
		t.emit(Update{JobID: t.jobID, State: StateFailed, Snapshot: snap, Err: err})

	case analysis.StatusComplete:
		if !t.signaled.CompareAndSwap(false, true) {
			return
		}
		t.session.Cancel()
		t.c.logger.Info("analysis complete, verifying payload", "job_id", t.jobID)
		if !t.emit(Update{JobID: t.jobID, State: StateCompletionSignaled, Progress: 100, Snapshot: snap}) {
			return
		}
		t.wg.Add(1)
		go t.verify()

	default:
		u := Update{JobID: t.jobID, State: StateWatching, Snapshot: snap}
		if p, ok := snap.Progress(); ok && p != 0 {
			u.Progress = p
		}
		t.emit(u)
	}
}

// verify re-reads the job until the payload is present or the attempt budget
// is spent, then commits.
func (t *Transition) verify() {
	defer t.wg.Done()

	cfg := t.c.cfg
	if err := clock.Sleep(t.ctx, t.c.clock, cfg.SettleDelay); err != nil {
		return
	}

	var last *analysis.Snapshot
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if !t.emit(Update{
			JobID:       t.jobID,
			State:       StateVerifying,
			Progress:    100,
			Attempt:     attempt,
			MaxAttempts: cfg.MaxAttempts,
		}) {
			return
		}

		snap, err := t.c.fetcher.Results(t.ctx, t.jobID)
		if !t.live() {
			return
		}

		switch {
		case err != nil:
			t.c.logger.Warn("verification read failed", "job_id", t.jobID, "attempt", attempt, "error", err)
		case snap.Ready():
			t.c.logger.Info("payload verified", "job_id", t.jobID, "attempt", attempt)
			t.emit(Update{
				JobID:       t.jobID,
				State:       StateCommitted,
				Progress:    100,
				Attempt:     attempt,
				MaxAttempts: cfg.MaxAttempts,
				Snapshot:    snap,
			})
			return
		default:
			last = snap
			t.c.logger.Debug("payload not ready", "job_id", t.jobID, "attempt", attempt, "status", snap.Status())
		}

		if attempt < cfg.MaxAttempts {
			if err := clock.Sleep(t.ctx, t.c.clock, cfg.RetryDelay); err != nil {
				return
			}
		}
	}

	t.c.logger.Warn("payload not confirmed, committing anyway", "job_id", t.jobID, "attempts", cfg.MaxAttempts)
	t.emit(Update{
		JobID:       t.jobID,
		State:       StateCommittedUnverified,
		Progress:    100,
		Attempt:     cfg.MaxAttempts,
		MaxAttempts: cfg.MaxAttempts,
		Snapshot:    last,
		Err:         ErrVerificationTimeout,
	})
}
