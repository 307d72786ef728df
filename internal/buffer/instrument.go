package buffer

import "sync/atomic"

// UsageHandle accumulates per-stage throughput counters for a single edge.
// It backs the Prometheus gauges the topology registers for every stage,
// under the invariant that every item flowing edge-to-edge is accounted
// for exactly once.
type UsageHandle struct {
	EdgeID string

	receivedEvents atomic.Uint64
	receivedBytes  atomic.Uint64
	sentEvents     atomic.Uint64
	sentBytes      atomic.Uint64
	dropped        atomic.Uint64
}

// NewUsageHandle creates a usage handle labeled with the given edge id.
func NewUsageHandle(edgeID string) *UsageHandle {
	return &UsageHandle{EdgeID: edgeID}
}

// RecordReceived is called once per item accepted by the sender side of a
// stage.
func (u *UsageHandle) RecordReceived(n int, bytes int) {
	u.receivedEvents.Add(uint64(n))
	u.receivedBytes.Add(uint64(bytes))
}

// RecordSent is called once per item yielded by the receiver side of a
// stage.
func (u *UsageHandle) RecordSent(n int, bytes int) {
	u.sentEvents.Add(uint64(n))
	u.sentBytes.Add(uint64(bytes))
}

// RecordDropped is called once per item discarded under a DropNewest
// policy.
func (u *UsageHandle) RecordDropped(n int) {
	u.dropped.Add(uint64(n))
}

// Snapshot is a point-in-time read of a UsageHandle's counters.
type Snapshot struct {
	ReceivedEvents uint64
	ReceivedBytes  uint64
	SentEvents     uint64
	SentBytes      uint64
	Dropped        uint64
}

// Snapshot returns the current counter values.
func (u *UsageHandle) Snapshot() Snapshot {
	return Snapshot{
		ReceivedEvents: u.receivedEvents.Load(),
		ReceivedBytes:  u.receivedBytes.Load(),
		SentEvents:     u.sentEvents.Load(),
		SentBytes:      u.sentBytes.Load(),
		Dropped:        u.dropped.Load(),
	}
}

// StillBuffered reports how many events are logically in flight within the
// stage right now: received minus sent minus dropped. Used to check the
// conservation invariant:
//
//	enqueued = dequeued + dropped + still_buffered(t2) - still_buffered(t1)
func (s Snapshot) StillBuffered() uint64 {
	return s.ReceivedEvents - s.SentEvents - s.Dropped
}
