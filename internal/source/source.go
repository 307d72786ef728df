// Package source defines the boundary contract every event producer must
// satisfy: an async driver racing its own I/O against a ShutdownSignal,
// pushing events into a SourceSender.
package source

import (
	"context"

	"firestige.xyz/otus/internal/buffer"
	"firestige.xyz/otus/internal/event"
	"firestige.xyz/otus/internal/shutdown"
)

// SourceSender is the producer-facing handle a Source pushes events into. It
// wraps the downstream BufferSender so a source never sees buffer internals
// (when-full policy, overflow composition, disk acking) — only Send.
type SourceSender struct {
	inner *buffer.BufferSender[event.Event]
}

// NewSourceSender wraps inner for handoff to a Source.
func NewSourceSender(inner *buffer.BufferSender[event.Event]) *SourceSender {
	return &SourceSender{inner: inner}
}

// Send pushes one event downstream, applying the edge's when-full policy.
func (s *SourceSender) Send(ctx context.Context, e event.Event) error {
	return s.inner.Send(ctx, e)
}

// SendArray pushes a batch of events downstream as a unit.
func (s *SourceSender) SendArray(ctx context.Context, events []event.Event) error {
	return s.inner.SendArray(ctx, events)
}

// Close releases this source's producer handle on the edge.
func (s *SourceSender) Close() error {
	return s.inner.Close()
}

// Usage exposes the underlying edge's UsageHandle so the topology builder
// can export its counters to Prometheus without reaching into buffer
// internals from outside this package.
func (s *SourceSender) Usage() *buffer.UsageHandle {
	return s.inner.Usage()
}

// Context carries everything a Source needs beyond its own configuration.
type Context struct {
	// Shutdown is raced against the source's own I/O. Most sources select
	// on Shutdown.Begin() alongside their I/O's wait channel;
	// the topology driver also derives a cancellable context from it, so a
	// source that only checks ctx.Done() still shuts down correctly.
	Shutdown shutdown.ShutdownSignal
	Out      *SourceSender
}

// Source is the boundary contract every event producer satisfies. Run
// drives the source until ctx is cancelled or shutdown begins, returning
// nil on a clean stop.
type Source interface {
	Run(ctx context.Context, sc Context) error
}

// Factory constructs and configures a Source from its topology
// configuration in one step, collapsing what used to be separate
// Construct/Init phases: sources need no Task-level shared-resource Wire
// step the way a `pkg/plugin.FlowRegistryAware` parser does.
type Factory func(cfg map[string]any) (Source, error)
