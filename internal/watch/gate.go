package watch

import (
	"sync"
	"sync/atomic"
)

// gate serializes observer callbacks against cancellation. Once shut returns,
// no new callback starts. shut called from inside a callback does not wait
// for it.
type gate struct {
	mu     sync.Mutex
	inCall atomic.Bool
}

// deliver runs fn under the gate if live still reports true.
func (g *gate) deliver(live func() bool, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !live() {
		return false
	}
	g.inCall.Store(true)
	defer g.inCall.Store(false)
	fn()
	return true
}

// shut runs stop, waiting for a delivery that has passed its live check but
// not yet entered the callback.
func (g *gate) shut(stop func()) {
	if g.inCall.Load() {
		stop()
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	stop()
}
