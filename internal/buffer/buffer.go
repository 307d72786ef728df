// Package buffer implements the per-edge buffer topology: bounded queues
// between pipeline components, configurable overflow behavior, and
// capacity accounting.
package buffer

import (
	"context"
	"errors"
)

// Bufferable is the constraint on values that can flow through a buffer
// stage: the stage needs to know how big an item is for capacity
// accounting (events for memory stages, bytes for disk stages).
type Bufferable interface {
	ByteSize() int
}

// WhenFull selects what a sender does when its stage has no room.
type WhenFull uint8

const (
	// Block suspends the send until capacity frees.
	Block WhenFull = iota
	// DropNewest discards the item immediately and increments a drop
	// counter.
	DropNewest
	// Overflow delegates the item to a second, inner sender. Not valid on
	// the innermost stage of a topology.
	Overflow
)

// String implements fmt.Stringer.
func (w WhenFull) String() string {
	switch w {
	case Block:
		return "block"
	case DropNewest:
		return "drop_newest"
	case Overflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Errors returned while building or operating a buffer topology.
var (
	// ErrEmptyTopology is returned by Builder.Build when no stage was added.
	ErrEmptyTopology = errors.New("otus: buffer topology cannot be empty")
	// ErrOverflowWhenLast is returned when the innermost (last-added) stage
	// is configured with WhenFull == Overflow; there is nothing to overflow
	// to.
	ErrOverflowWhenLast = errors.New("otus: last stage in buffer topology cannot be set to overflow")
	// ErrNextStageNotUsed is returned when a non-innermost stage is
	// configured Block or DropNewest despite having a successor stage —
	// only Overflow makes sense there.
	ErrNextStageNotUsed = errors.New("otus: stage configured with block/drop_newest ahead of a subsequent stage")
	// ErrStackedAcks is returned when more than one stage in a single
	// topology requires segmented (disk) acknowledgement.
	ErrStackedAcks = errors.New("otus: multiple disk-backed stages cannot be stacked in one buffer topology")
	// ErrSenderClosed is returned by Send after the receiver side has gone
	// away (never applicable from the receiver's own perspective — edges
	// are only closed by dropping all senders).
	ErrSenderClosed = errors.New("otus: buffer sender is closed")
	// ErrMultiProducerUnsupported is returned by Clone when the underlying
	// stage does not support multiple producers (disk stages do not).
	ErrMultiProducerUnsupported = errors.New("otus: this buffer stage does not support multiple producers")
)

// Stage is one level of a buffer topology: a sender/receiver pair plus the
// metadata the topology builder needs to compose stages together.
type Stage[T Bufferable] interface {
	// Sender returns the stage's sender half.
	Sender() StageSender[T]
	// Receiver returns the stage's receiver half.
	Receiver() StageReceiver[T]
	// SupportsMultiProducer reports whether Sender().Clone() is valid.
	SupportsMultiProducer() bool
	// ProvidesInstrumentation reports whether this stage already tracks its
	// own usage. Neither the memory stage nor the disk stage does; both
	// report false and are wrapped in a UsageHandle by the Builder.
	ProvidesInstrumentation() bool
	// Close releases resources held by the stage (files, goroutines).
	Close() error
}

// StageSender is the low-level, single-stage sender a Stage exposes before
// overflow composition and instrumentation wrap it into a BufferSender.
type StageSender[T Bufferable] interface {
	// Send enqueues one item, respecting the stage's own capacity logic.
	// Returns ErrSenderClosed if the stage has been closed from the sender
	// side. Implementations must be cancellation-safe: ctx cancellation
	// must leave the item either fully enqueued or not enqueued at all.
	Send(ctx context.Context, item T) error
	// TrySend attempts a non-blocking enqueue, returning false if the stage
	// has no room.
	TrySend(item T) bool
	// Clone returns an additional handle to this stage's sender, for
	// multi-producer stages. Panics if SupportsMultiProducer() is false.
	Clone() StageSender[T]
	// Close signals that this producer handle is done sending. The stage
	// itself closes only once every cloned sender has closed.
	Close() error
}

// StageReceiver is the low-level, single-stage receiver.
type StageReceiver[T Bufferable] interface {
	// Next yields the next item, blocking until one is available or the
	// stage is closed (in which case ok is false).
	Next(ctx context.Context) (item T, ok bool)
	// TryNext attempts a non-blocking dequeue. ready is false if the stage
	// is currently empty (but not necessarily closed).
	TryNext() (item T, ready bool)
	// Len reports the number of items currently queued.
	Len() int
	// Closed reports whether every producer handle has closed and the
	// stage is permanently empty — i.e. Next will never again return ok.
	Closed() bool
}
