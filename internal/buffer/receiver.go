package buffer

import (
	"context"
	"time"
)

// BufferReceiver is the consumer-facing handle on one edge. For a plain
// stage it simply forwards to the stage's receiver; for an Overflow-
// composed edge it drains its own stage until empty, then the next stage
// until empty, then alternates, which explicitly weakens ordering across
// the overflow boundary.
type BufferReceiver[T Bufferable] struct {
	inner StageReceiver[T]
	next  *BufferReceiver[T] // non-nil only when this edge overflows to another stage
	usage *UsageHandle
}

// NewBufferReceiver wraps a stage receiver. next is non-nil only for
// overflow-composed edges.
func NewBufferReceiver[T Bufferable](inner StageReceiver[T], next *BufferReceiver[T], usage *UsageHandle) *BufferReceiver[T] {
	return &BufferReceiver[T]{inner: inner, next: next, usage: usage}
}

// pollInterval bounds how long Next may sleep while alternating between two
// heterogeneous stages that are both momentarily empty. Both stages are
// polled non-blockingly on each tick; this only matters on the (already
// order-weakening) overflow path, never on a plain single-stage edge.
const pollInterval = 2 * time.Millisecond

// Next yields the next item, blocking until one is available from either
// composed stage or until ctx is cancelled.
func (r *BufferReceiver[T]) Next(ctx context.Context) (item T, ok bool) {
	if r.next == nil {
		item, ok = r.inner.Next(ctx)
		if ok {
			r.recordSent(item)
		}
		return item, ok
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if item, ready := r.inner.TryNext(); ready {
			r.recordSent(item)
			return item, true
		}
		if item, ready := r.next.inner.TryNext(); ready {
			r.next.recordSent(item)
			return item, true
		}
		// Both stages empty right now. If both producers are gone, there is
		// nothing left to wait for.
		if r.inner.Closed() && r.next.inner.Closed() {
			var zero T
			return zero, false
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, false
		case <-ticker.C:
			continue
		}
	}
}

func (r *BufferReceiver[T]) recordSent(item T) {
	if r.usage != nil {
		r.usage.RecordSent(1, item.ByteSize())
	}
}

// Len reports the number of items currently queued across all composed
// stages.
func (r *BufferReceiver[T]) Len() int {
	n := r.inner.Len()
	if r.next != nil {
		n += r.next.Len()
	}
	return n
}

// Usage exposes this stage's UsageHandle so the topology builder can export
// its counters to Prometheus.
func (r *BufferReceiver[T]) Usage() *UsageHandle {
	return r.usage
}
