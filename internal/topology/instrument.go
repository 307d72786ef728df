package topology

import (
	"context"
	"time"

	"firestige.xyz/otus/internal/buffer"
	"firestige.xyz/otus/internal/metrics"
)

// instrumentInterval bounds how stale the exported edge counters can be
// while the topology is running; the final export on Stop always reflects
// the exact counts at shutdown regardless of this interval.
const instrumentInterval = time.Second

// edgeUsage pairs a UsageHandle with the last-seen cumulative snapshot, so
// the periodic exporter can turn its monotonically increasing counters into
// the deltas a Prometheus Counter's Add expects.
type edgeUsage struct {
	handle *buffer.UsageHandle
	last   buffer.Snapshot
}

// collectEdgeUsages gathers one UsageHandle per edge: a source's output, a
// transform's input, and a sink's input. buffer.Builder.Build threads the
// same handle into both the sender and receiver half of a stage, so a
// transform's input handle is the identical pointer as its upstream
// producer's output handle; deduping on the pointer here means every edge
// is still exported exactly once.
func (t *Topology) collectEdgeUsages() []*edgeUsage {
	seen := make(map[*buffer.UsageHandle]bool)
	var usages []*edgeUsage
	add := func(h *buffer.UsageHandle) {
		if h == nil || seen[h] {
			return
		}
		seen[h] = true
		usages = append(usages, &edgeUsage{handle: h})
	}

	for _, s := range t.sources {
		add(s.sender.Usage())
	}
	for _, tr := range t.transforms {
		add(tr.dispatcher.InputUsage())
	}
	for _, sc := range t.sinkContexts {
		add(sc.In.Usage())
	}
	return usages
}

// runInstrumentation polls every edge's UsageHandle on instrumentInterval
// and exports its counters to internal/metrics, until ctx is cancelled —
// at which point it exports one final time so the last snapshot before
// shutdown is never lost.
func (t *Topology) runInstrumentation(ctx context.Context) {
	usages := t.collectEdgeUsages()
	if len(usages) == 0 {
		return
	}

	ticker := time.NewTicker(instrumentInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			exportEdgeUsages(usages)
			return
		case <-ticker.C:
			exportEdgeUsages(usages)
		}
	}
}

func exportEdgeUsages(usages []*edgeUsage) {
	for _, u := range usages {
		snap := u.handle.Snapshot()
		edge := u.handle.EdgeID

		if d := snap.ReceivedEvents - u.last.ReceivedEvents; d > 0 {
			metrics.EdgeEventsReceivedTotal.WithLabelValues(edge).Add(float64(d))
		}
		if d := snap.SentEvents - u.last.SentEvents; d > 0 {
			metrics.EdgeEventsSentTotal.WithLabelValues(edge).Add(float64(d))
		}
		if d := snap.Dropped - u.last.Dropped; d > 0 {
			metrics.EdgeEventsDroppedTotal.WithLabelValues(edge).Add(float64(d))
		}
		metrics.EdgeBufferedEvents.WithLabelValues(edge).Set(float64(snap.StillBuffered()))

		u.last = snap
	}
}
