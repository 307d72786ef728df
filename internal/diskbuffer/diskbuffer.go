// Package diskbuffer implements the disk-backed buffer stage: a durable
// record log keyed by a monotonically increasing integer, backed by
// go.etcd.io/bbolt.
package diskbuffer

import (
	"encoding/binary"
	"sync"
	"time"

	"firestige.xyz/otus/internal/buffer"
)

var (
	recordsBucket = []byte("records")
)

// deleteInterval is how often pending deletes are batched into a single
// bbolt commit, amortizing disk commits the same way a rate limiter
// amortizes log flushes on a timer.
const deleteInterval = 500 * time.Millisecond

// Codec converts between an in-memory item and its on-disk byte
// representation. Callers provide one per concrete event type stored in a
// disk stage.
type Codec[T buffer.Bufferable] struct {
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

func encodeKey(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func decodeKey(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// broadcaster is a close-and-replace condition variable: waiters take the
// current channel and block on it; broadcast closes it and installs a fresh
// one. Go has no direct equivalent of the Rust writer-wakeup queue this
// stands in for, so this is built on sync primitives rather than a
// third-party dependency (see DESIGN.md).
type broadcaster struct {
	mu sync.Mutex
	ch chan struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{ch: make(chan struct{})}
}

func (b *broadcaster) wait() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch
}

func (b *broadcaster) broadcast() {
	b.mu.Lock()
	defer b.mu.Unlock()
	close(b.ch)
	b.ch = make(chan struct{})
}
