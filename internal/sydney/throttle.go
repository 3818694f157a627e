// ABOUTME: Leading+trailing throttle for progress callbacks.
// ABOUTME: Delivers at most one callback per interval, always with the freshest snapshot.

package sydney

import (
	"sync"
	"time"

	"github.com/2389/sydney-bridge/internal/wire"
)

// ProgressFunc receives the full current ordered fragment set on each
// throttled progress notification.
type ProgressFunc func(messages []wire.Message)

// notifier rate-limits progress delivery. The first publish in a quiet
// period fires immediately; further publishes within the interval are
// coalesced into one trailing delivery carrying the latest snapshot, so a
// burst never drops its final state.
type notifier struct {
	interval time.Duration
	fn       ProgressFunc

	mu      sync.Mutex
	last    time.Time
	pending []wire.Message
	timer   *time.Timer
	stopped bool
}

func newNotifier(interval time.Duration, fn ProgressFunc) *notifier {
	return &notifier{interval: interval, fn: fn}
}

// publish offers a new snapshot. The callback runs on the caller's goroutine
// for leading deliveries and on a timer goroutine for trailing ones; it is
// never invoked with a stale snapshot.
func (n *notifier) publish(msgs []wire.Message) {
	if n.fn == nil {
		return
	}

	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	now := time.Now()
	if n.timer == nil && now.Sub(n.last) >= n.interval {
		n.last = now
		n.mu.Unlock()
		n.fn(msgs)
		return
	}
	n.pending = msgs
	if n.timer == nil {
		delay := n.interval - now.Sub(n.last)
		n.timer = time.AfterFunc(delay, n.fire)
	}
	n.mu.Unlock()
}

// fire delivers the pending trailing snapshot, if any.
func (n *notifier) fire() {
	n.mu.Lock()
	n.timer = nil
	if n.stopped || n.pending == nil {
		n.mu.Unlock()
		return
	}
	msgs := n.pending
	n.pending = nil
	n.last = time.Now()
	n.mu.Unlock()
	n.fn(msgs)
}

// flush delivers any pending trailing snapshot immediately. Called on
// completion so the caller always observes the final accumulated state.
func (n *notifier) flush() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	msgs := n.pending
	n.pending = nil
	n.mu.Unlock()

	if msgs != nil && n.fn != nil {
		n.fn(msgs)
	}
}

// stop cancels any pending delivery without invoking the callback. A failed
// exchange must not emit further progress.
func (n *notifier) stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopped = true
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.pending = nil
}
