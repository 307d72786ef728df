// Package transform implements the three transform variants (pure
// Function, multi-port Sync, and stream-to-stream Task) and the
// single-dispatch-site-per-edge driver that runs them, generalized from
// the prior pipeline's processPacket: one dispatch loop iterating its
// component slices, rather than one branch per packet type.
package transform

import (
	"context"

	"firestige.xyz/otus/internal/event"
)

// Kind discriminates which of the three variants a Transform wraps. Go has
// no sum type, so dispatch sites type-switch on this exactly once per edge.
type Kind uint8

const (
	KindFunction Kind = iota
	KindSync
	KindTask
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindSync:
		return "sync"
	case KindTask:
		return "task"
	default:
		return "unknown"
	}
}

// Function is pure, stateless, and cloneable across calls: the runtime may
// parallelize it freely.
type Function interface {
	Transform(out *OutputBuffer, e event.Event)
	Clone() Function
}

// Sync is stateful and cloneable by concurrency level. It may write to any
// declared named output; writing to an unknown port is a bug and panics.
type Sync interface {
	Transform(out *TransformOutputs, e event.Event)
	Clone() Sync
}

// Task is stateful, single-instance, and coordination-capable: it maps a
// stream to a stream. Used for windowed aggregation, timers, batching.
type Task interface {
	Run(ctx context.Context, in <-chan event.Event, out chan<- event.Event)
}

// Transform wraps exactly one of Function, Sync, or Task, selected at
// construction.
type Transform struct {
	kind     Kind
	function Function
	sync_    Sync
	task     Task
}

// NewFunction wraps f as a Function-variant Transform.
func NewFunction(f Function) Transform { return Transform{kind: KindFunction, function: f} }

// NewSync wraps s as a Sync-variant Transform.
func NewSync(s Sync) Transform { return Transform{kind: KindSync, sync_: s} }

// NewTask wraps t as a Task-variant Transform.
func NewTask(t Task) Transform { return Transform{kind: KindTask, task: t} }

// Kind reports which variant this Transform wraps.
func (t Transform) Kind() Kind { return t.kind }

// AsFunction returns the wrapped Function. Panics if Kind() != KindFunction.
func (t Transform) AsFunction() Function {
	if t.kind != KindFunction {
		panic("transform: AsFunction called on a non-function transform")
	}
	return t.function
}

// AsSync returns the wrapped Sync. Panics if Kind() != KindSync.
func (t Transform) AsSync() Sync {
	if t.kind != KindSync {
		panic("transform: AsSync called on a non-sync transform")
	}
	return t.sync_
}

// AsTask returns the wrapped Task. Panics if Kind() != KindTask.
func (t Transform) AsTask() Task {
	if t.kind != KindTask {
		panic("transform: AsTask called on a non-task transform")
	}
	return t.task
}
