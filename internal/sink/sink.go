// Package sink defines the boundary contract every event consumer must
// satisfy: an async driver consuming events from a stream, resolving each
// event's delivery status on its finalizer.
package sink

import (
	"context"

	"firestige.xyz/otus/internal/buffer"
	"firestige.xyz/otus/internal/diskbuffer"
	"firestige.xyz/otus/internal/event"
)

// Context carries everything a Sink needs to drive its incoming edge.
type Context struct {
	In *buffer.BufferReceiver[event.Event]
	// Acker is non-nil only when the incoming edge's innermost stage is a
	// disk stage requiring segmented acknowledgement — participation is
	// optional. A sink that receives one
	// must call Acker.Ack(n) after n consecutive events have been durably
	// delivered; a sink that ignores a non-nil Acker never frees disk space.
	Acker *diskbuffer.Acker
}

// Sink is the boundary contract every event consumer satisfies. Run drains
// sc.In until it closes or ctx is cancelled, resolving each event's
// finalizer via its Metadata before returning.
type Sink interface {
	Run(ctx context.Context, sc Context) error
}

// Factory constructs and configures a Sink from its topology configuration
// in one step (see source.Factory for why Construct/Init collapse here).
type Factory func(cfg map[string]any) (Sink, error)
