// Package batcher implements the batch+fallback wrapper sinks use to group
// events before an expensive remote call, generalized from a prior
// ReporterWrapper design: a primary delivery function batched by size or
// timeout, with an optional fallback invoked per-event when the primary
// batch fails.
package batcher

import (
	"context"
	"log/slog"
	"time"

	"firestige.xyz/otus/internal/event"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 50 * time.Millisecond
	defaultChanCapacity = 10000
)

// DeliverBatch sends a batch of events to the underlying destination,
// resolving each event's finalizer itself (Delivered/Errored/Rejected) as
// appropriate before returning. An error indicates the whole batch should
// be retried against Fallback, if any.
type DeliverBatch func(ctx context.Context, batch []event.Event) error

// DeliverOne is the fallback path invoked once per event when DeliverBatch
// fails and a fallback was configured.
type DeliverOne func(ctx context.Context, e event.Event) error

// Config configures a Batcher.
type Config struct {
	Primary      DeliverBatch
	Fallback     DeliverOne // nil disables fallback
	SinkID       string     // for logging only
	BatchSize    int
	BatchTimeout time.Duration
}

// Batcher collects events into batches and flushes them on size or timeout,
// mirroring ReporterWrapper.batchLoop's select-on-channel-or-ticker shape.
type Batcher struct {
	primary  DeliverBatch
	fallback DeliverOne

	sinkID       string
	batchSize    int
	batchTimeout time.Duration

	inCh   chan event.Event
	doneCh chan struct{}
}

// New builds a Batcher. Call Start to begin its batching goroutine.
func New(cfg Config) *Batcher {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}

	return &Batcher{
		primary:      cfg.Primary,
		fallback:     cfg.Fallback,
		sinkID:       cfg.SinkID,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		inCh:         make(chan event.Event, defaultChanCapacity),
		doneCh:       make(chan struct{}),
	}
}

// Start launches the batching goroutine, run against ctx.
func (b *Batcher) Start(ctx context.Context) {
	go b.loop(ctx)
}

// Send enqueues e for batched delivery. Blocks only if the internal channel
// is full (backpressure propagates to the caller, as any bounded channel
// send does).
func (b *Batcher) Send(ctx context.Context, e event.Event) error {
	select {
	case b.inCh <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new events and waits for the final batch to flush.
func (b *Batcher) Close() {
	close(b.inCh)
	<-b.doneCh
}

func (b *Batcher) loop(ctx context.Context) {
	defer close(b.doneCh)

	batch := make([]event.Event, 0, b.batchSize)
	ticker := time.NewTicker(b.batchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := b.primary(ctx, batch); err != nil {
			slog.Warn("batcher: primary delivery failed", "sink", b.sinkID, "batch_size", len(batch), "error", err)
			if b.fallback != nil {
				for _, e := range batch {
					if fbErr := b.fallback(ctx, e); fbErr != nil {
						slog.Warn("batcher: fallback delivery also failed", "sink", b.sinkID, "error", fbErr)
					}
				}
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-b.inCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= b.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}
