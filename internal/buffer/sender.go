package buffer

import "context"

// BufferSender is the producer-facing handle on one edge: one event (or
// array) at a time, applying the edge's configured WhenFull policy and, for
// Overflow-configured stages, delegating to the next stage's sender.
//
// A BufferSender may be cloned only if the underlying stage supports
// multiple producers.
type BufferSender[T Bufferable] struct {
	inner     StageSender[T]
	whenFull  WhenFull
	overflow  *BufferSender[T] // non-nil only when whenFull == Overflow
	usage     *UsageHandle
	multiProd bool
}

// NewBufferSender wraps a stage sender with a when-full policy. overflow
// must be non-nil iff whenFull == Overflow, and nil otherwise; this is
// enforced by the topology builder (Builder.Build), not here.
func NewBufferSender[T Bufferable](inner StageSender[T], whenFull WhenFull, overflow *BufferSender[T], usage *UsageHandle, multiProducer bool) *BufferSender[T] {
	return &BufferSender[T]{
		inner:     inner,
		whenFull:  whenFull,
		overflow:  overflow,
		usage:     usage,
		multiProd: multiProducer,
	}
}

// Send enqueues one item according to the edge's when-full policy.
//
//   - Block: suspends until capacity frees.
//   - DropNewest: returns immediately, discarding the item and incrementing
//     the drop counter; never returns an error, since policy-driven loss
//     is not itself an error condition.
//   - Overflow: tries the current stage first; on failure, delegates
//     synchronously to the next stage's sender.
func (s *BufferSender[T]) Send(ctx context.Context, item T) error {
	switch s.whenFull {
	case Block:
		if err := s.inner.Send(ctx, item); err != nil {
			return err
		}
		s.recordSent(item)
		return nil

	case DropNewest:
		if s.inner.TrySend(item) {
			s.recordSent(item)
			return nil
		}
		if s.usage != nil {
			s.usage.RecordDropped(1)
		}
		return nil

	case Overflow:
		if s.inner.TrySend(item) {
			s.recordSent(item)
			return nil
		}
		return s.overflow.Send(ctx, item)

	default:
		return s.inner.Send(ctx, item)
	}
}

// SendArray enqueues an array of items as a unit, preserving the FIFO
// ordering of the array itself. Each item is subject to the same
// per-element when-full handling as Send.
func (s *BufferSender[T]) SendArray(ctx context.Context, items []T) error {
	for _, item := range items {
		if err := s.Send(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *BufferSender[T]) recordSent(item T) {
	if s.usage != nil {
		s.usage.RecordReceived(1, item.ByteSize())
	}
}

// SupportsMultiProducer reports whether Clone is valid on this sender, so
// callers composing a fan-in edge can reject it as a configuration error up
// front instead of panicking partway through wiring.
func (s *BufferSender[T]) SupportsMultiProducer() bool { return s.multiProd }

// Clone returns an additional producer handle onto the same edge. It panics
// if the innermost stage does not support multiple producers — this is a
// build-time-checkable condition and the topology builder should validate
// it before ever calling Clone at runtime.
func (s *BufferSender[T]) Clone() *BufferSender[T] {
	if !s.multiProd {
		panic(ErrMultiProducerUnsupported)
	}
	return &BufferSender[T]{
		inner:     s.inner.Clone(),
		whenFull:  s.whenFull,
		overflow:  s.overflow,
		usage:     s.usage,
		multiProd: s.multiProd,
	}
}

// Close releases this producer handle.
func (s *BufferSender[T]) Close() error {
	return s.inner.Close()
}

// Dropped returns the number of items discarded by this sender under
// DropNewest, for tests and diagnostics.
func (s *BufferSender[T]) Dropped() uint64 {
	if s.usage == nil {
		return 0
	}
	return s.usage.Snapshot().Dropped
}

// Usage exposes this stage's UsageHandle so the topology builder can export
// its counters to Prometheus. Nil for a sender built without one (tests
// constructing stages directly).
func (s *BufferSender[T]) Usage() *UsageHandle {
	return s.usage
}
