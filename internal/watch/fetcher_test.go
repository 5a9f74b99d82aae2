package watch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/waypoint/internal/analysis"
	"github.com/kalambet/waypoint/internal/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type step struct {
	snap *analysis.Snapshot
	err  error
}

// scriptedFetcher replays steps in order and repeats the last one forever.
type scriptedFetcher struct {
	mu    sync.Mutex
	clk   *clock.Fake
	steps []step
	calls int
	at    []time.Duration
}

func newScripted(clk *clock.Fake, steps ...step) *scriptedFetcher {
	return &scriptedFetcher{clk: clk, steps: steps}
}

func (f *scriptedFetcher) Results(_ context.Context, _ string) (*analysis.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	f.calls++
	f.at = append(f.at, f.clk.Now().Sub(epoch))
	return f.steps[i].snap, f.steps[i].err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *scriptedFetcher) Times() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.at...)
}

func snapshot(status analysis.Status, progress float64, withPayload bool) step {
	p := progress
	data := &analysis.JobData{Status: status, Progress: &p}
	if withPayload {
		data.Analysis = json.RawMessage(`{"overview":"A crowded market with room at the low end."}`)
	}
	return step{snap: &analysis.Snapshot{Success: true, Data: data}}
}

func failedStep(msg string) step {
	return step{snap: &analysis.Snapshot{Success: true, Data: &analysis.JobData{Status: analysis.StatusFailed, Error: msg}}}
}

func rejectedStep() step {
	return step{snap: &analysis.Snapshot{Success: false}}
}

func errStep(err error) step {
	return step{err: err}
}

// drive advances clk by tick whenever a timer is pending until the returned
// stop func is called.
func drive(clk *clock.Fake, tick time.Duration) (stop func()) {
	quit := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case <-quit:
				return
			default:
			}
			if clk.Pending() > 0 {
				clk.Advance(tick)
				continue
			}
			time.Sleep(50 * time.Microsecond)
		}
	}()
	return func() {
		close(quit)
		<-finished
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) OnState(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) Updates() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

func (r *recorder) States() []State {
	var out []State
	for _, u := range r.Updates() {
		out = append(out, u.State)
	}
	return out
}

func (r *recorder) Count(s State) int {
	n := 0
	for _, u := range r.Updates() {
		if u.State == s {
			n++
		}
	}
	return n
}

// stallHandler blocks the logging goroutine on the first record with the
// given message until release is closed.
type stallHandler struct {
	msg     string
	once    *sync.Once
	entered chan struct{}
	release chan struct{}
}

func newStallLogger(msg string) (*slog.Logger, *stallHandler) {
	h := &stallHandler{
		msg:     msg,
		once:    &sync.Once{},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	return slog.New(h), h
}

func (h *stallHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *stallHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Message != h.msg {
		return nil
	}
	stalled := false
	h.once.Do(func() {
		stalled = true
		close(h.entered)
	})
	if stalled {
		<-h.release
	}
	return nil
}

func (h *stallHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *stallHandler) WithGroup(string) slog.Handler      { return h }
