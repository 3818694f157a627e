// ABOUTME: Tests for the leading+trailing progress throttle.
// ABOUTME: Validates the cadence bound, freshest-snapshot guarantee, and trailing delivery.

package sydney

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/sydney-bridge/internal/wire"
)

// progressRecorder collects throttled callbacks for inspection.
type progressRecorder struct {
	mu    sync.Mutex
	calls [][]wire.Message
}

func (r *progressRecorder) record(msgs []wire.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, msgs)
}

func (r *progressRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *progressRecorder) last() []wire.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func snapshotN(n int) []wire.Message {
	return []wire.Message{{MessageID: "m1", Text: time.Duration(n).String()}}
}

func TestNotifier_LeadingCallIsImmediate(t *testing.T) {
	rec := &progressRecorder{}
	n := newNotifier(500*time.Millisecond, rec.record)

	n.publish(snapshotN(1))

	assert.Equal(t, 1, rec.count())
}

func TestNotifier_BurstIsBoundedAndDeliversFinalState(t *testing.T) {
	rec := &progressRecorder{}
	n := newNotifier(100*time.Millisecond, rec.record)

	// Fragments arriving every 10ms for ~400ms: at most ceil(400/100)+1
	// calls, and the last call must carry the final snapshot.
	var final []wire.Message
	for i := 0; i < 40; i++ {
		final = snapshotN(i)
		n.publish(final)
		time.Sleep(10 * time.Millisecond)
	}
	// Allow the trailing timer to fire.
	time.Sleep(150 * time.Millisecond)

	assert.LessOrEqual(t, rec.count(), 6)
	assert.GreaterOrEqual(t, rec.count(), 2)
	require.NotNil(t, rec.last())
	assert.Equal(t, final[0].Text, rec.last()[0].Text)
}

func TestNotifier_TrailingSnapshotIsFreshest(t *testing.T) {
	rec := &progressRecorder{}
	n := newNotifier(200*time.Millisecond, rec.record)

	n.publish(snapshotN(1)) // leading, delivered
	n.publish(snapshotN(2)) // coalesced
	n.publish(snapshotN(3)) // replaces the pending snapshot

	time.Sleep(300 * time.Millisecond)

	require.Equal(t, 2, rec.count())
	assert.Equal(t, snapshotN(3)[0].Text, rec.last()[0].Text)
}

func TestNotifier_FlushDeliversPendingImmediately(t *testing.T) {
	rec := &progressRecorder{}
	n := newNotifier(10*time.Second, rec.record)

	n.publish(snapshotN(1))
	n.publish(snapshotN(2)) // would otherwise wait 10s

	n.flush()

	require.Equal(t, 2, rec.count())
	assert.Equal(t, snapshotN(2)[0].Text, rec.last()[0].Text)
}

func TestNotifier_FlushWithoutPendingIsNoOp(t *testing.T) {
	rec := &progressRecorder{}
	n := newNotifier(100*time.Millisecond, rec.record)

	n.publish(snapshotN(1))
	n.flush()

	assert.Equal(t, 1, rec.count())
}

func TestNotifier_StopSuppressesPendingDelivery(t *testing.T) {
	rec := &progressRecorder{}
	n := newNotifier(50*time.Millisecond, rec.record)

	n.publish(snapshotN(1))
	n.publish(snapshotN(2))
	n.stop()

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, rec.count())

	// Publishing after stop emits nothing.
	n.publish(snapshotN(3))
	assert.Equal(t, 1, rec.count())
}

func TestNotifier_NilCallbackIsSafe(t *testing.T) {
	n := newNotifier(50*time.Millisecond, nil)

	n.publish(snapshotN(1))
	n.flush()
	n.stop()
}
