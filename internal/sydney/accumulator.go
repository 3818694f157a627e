// ABOUTME: Fragment accumulator for streamed partial updates.
// ABOUTME: Same messageId replaces (last write wins); new ids append in first-seen order.

package sydney

import "github.com/2389/sydney-bridge/internal/wire"

// accumulator merges partial-update fragments into an ordered, deduplicated
// view. Arrival order of fragments is not monotonic; the ordered sequence of
// distinct messageIds as first seen defines display order.
type accumulator struct {
	order []string
	byID  map[string]wire.Message
}

func newAccumulator() *accumulator {
	return &accumulator{byID: make(map[string]wire.Message)}
}

// apply merges a batch of fragments. A fragment whose messageId was seen
// before replaces the prior fragment with that id.
func (a *accumulator) apply(msgs []wire.Message) {
	for _, msg := range msgs {
		if _, seen := a.byID[msg.MessageID]; !seen {
			a.order = append(a.order, msg.MessageID)
		}
		a.byID[msg.MessageID] = msg
	}
}

// snapshot returns the last-known state of every fragment in first-seen order.
func (a *accumulator) snapshot() []wire.Message {
	out := make([]wire.Message, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.byID[id])
	}
	return out
}

// answer returns the last fragment that is normal chat text, skipping
// status fragments (those carrying a messageType).
func (a *accumulator) answer() (wire.Message, bool) {
	return lastAnswer(a.snapshot())
}

// lastAnswer picks the final non-status fragment from an ordered message list.
func lastAnswer(msgs []wire.Message) (wire.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].MessageType == "" {
			return msgs[i], true
		}
	}
	return wire.Message{}, false
}
