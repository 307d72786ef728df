package diskbuffer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"firestige.xyz/otus/internal/buffer"
)

// Stage is a disk-backed buffer.Stage: it presents the same sender/receiver
// contract as a memory stage, plus capacity-bounded durable storage,
// ack-driven deletion, and corruption recovery.
type Stage[T buffer.Bufferable] struct {
	dir     string
	codec   Codec[T]
	maxSize uint64

	mu                sync.Mutex
	db                *bolt.DB
	writeOffset       uint64
	readOffset        uint64
	deleteOffset      uint64 // logical ack boundary; records here are reclaimable
	physicallyDeleted uint64 // bbolt keys already removed
	storedBytes       uint64
	reclaimable       uint64 // bytes freed since the last compaction
	compacting        bool
	producers         int
	closed            bool
	pendingKinds      []bool // per consumed-but-undeleted key, true == poison

	notEmpty   *broadcaster
	writerWake *broadcaster

	deleteNow   chan struct{}
	stopDeleter chan struct{}
	deleterDone chan struct{}

	acker *Acker
}

// Open opens (or creates) a disk stage rooted at dir, bounding stored bytes
// to maxSize.
func Open[T buffer.Bufferable](dir string, maxSize uint64, codec Codec[T]) (*Stage[T], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("diskbuffer: create dir %q: %w", dir, err)
	}

	db, err := bolt.Open(filepath.Join(dir, "buffer.db"), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("diskbuffer: open db: %w", err)
	}

	s := &Stage[T]{
		dir:         dir,
		codec:       codec,
		maxSize:     maxSize,
		db:          db,
		producers:   1,
		notEmpty:    newBroadcaster(),
		writerWake:  newBroadcaster(),
		deleteNow:   make(chan struct{}, 1),
		stopDeleter: make(chan struct{}),
		deleterDone: make(chan struct{}),
	}
	s.acker = newAcker(s)

	if err := s.recoverOffsets(); err != nil {
		db.Close()
		return nil, err
	}

	// One-shot compaction on open.
	if err := s.compact(); err != nil {
		slog.Warn("diskbuffer: startup compaction failed", "dir", dir, "error", err)
	}

	go s.deleteLoop()
	return s, nil
}

func (s *Stage[T]) recoverOffsets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(recordsBucket)
		if err != nil {
			return err
		}
		var haveAny bool
		var low, high, stored uint64
		err = b.ForEach(func(k, v []byte) error {
			key := decodeKey(k)
			if !haveAny || key < low {
				low = key
			}
			if !haveAny || key > high {
				high = key
			}
			haveAny = true
			stored += uint64(len(v))
			return nil
		})
		if err != nil {
			return err
		}
		if !haveAny {
			return nil
		}
		s.readOffset = low
		s.deleteOffset = low
		s.physicallyDeleted = low
		s.writeOffset = high + 1
		s.storedBytes = stored
		return nil
	})
}

func (s *Stage[T]) database() *bolt.DB {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	return db
}

// Sender returns the stage's sender half.
func (s *Stage[T]) Sender() buffer.StageSender[T] { return &diskSender[T]{stage: s} }

// Receiver returns the stage's receiver half.
func (s *Stage[T]) Receiver() buffer.StageReceiver[T] { return &diskReceiver[T]{stage: s} }

// SupportsMultiProducer is always false: the disk stage tracks one writer
// offset with no provision for interleaved producer identities.
func (s *Stage[T]) SupportsMultiProducer() bool { return false }

// ProvidesInstrumentation is false; the topology builder wraps this stage in
// a generic UsageHandle like any other, same as the memory stage.
func (s *Stage[T]) ProvidesInstrumentation() bool { return false }

// Acker returns the ack handle a sink advances as it durably finishes
// handling events read from this stage.
func (s *Stage[T]) Acker() *Acker { return s.acker }

// Close performs a final compaction and releases the underlying database.
func (s *Stage[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopDeleter)
	<-s.deleterDone

	if err := s.compact(); err != nil {
		slog.Warn("diskbuffer: shutdown compaction failed", "dir", s.dir, "error", err)
	}

	s.notEmpty.broadcast()
	return s.database().Close()
}

func (s *Stage[T]) closeSender() error {
	s.mu.Lock()
	s.producers--
	done := s.producers == 0
	s.mu.Unlock()
	if done {
		s.notEmpty.broadcast()
	}
	return nil
}

func (s *Stage[T]) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (s.closed || s.producers == 0) && s.readOffset >= s.writeOffset
}

func (s *Stage[T]) queuedLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.writeOffset - s.readOffset)
}

// send blocks until the item has been durably written, parking on the
// writer-wakeup queue whenever a write would exceed maxSize.
func (s *Stage[T]) send(ctx context.Context, item T) error {
	data, err := s.codec.Encode(item)
	if err != nil {
		return fmt.Errorf("diskbuffer: encode record: %w", err)
	}
	size := uint64(len(data))

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return buffer.ErrSenderClosed
		}
		if s.storedBytes > 0 && s.storedBytes+size > s.maxSize {
			wake := s.writerWake.wait()
			s.mu.Unlock()
			select {
			case <-wake:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		key := s.writeOffset
		s.writeOffset++
		s.storedBytes += size
		s.mu.Unlock()

		if err := s.database().Update(func(tx *bolt.Tx) error {
			return tx.Bucket(recordsBucket).Put(encodeKey(key), data)
		}); err != nil {
			s.mu.Lock()
			s.writeOffset--
			s.storedBytes -= size
			s.mu.Unlock()
			return fmt.Errorf("diskbuffer: write record: %w", err)
		}

		s.notEmpty.broadcast()
		return nil
	}
}

// trySend is the non-blocking variant: it fails rather than waiting for a
// deletion pass to free capacity.
func (s *Stage[T]) trySend(item T) bool {
	data, err := s.codec.Encode(item)
	if err != nil {
		return false
	}
	size := uint64(len(data))

	s.mu.Lock()
	if s.closed || (s.storedBytes > 0 && s.storedBytes+size > s.maxSize) {
		s.mu.Unlock()
		return false
	}
	key := s.writeOffset
	s.writeOffset++
	s.storedBytes += size
	s.mu.Unlock()

	if err := s.database().Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Put(encodeKey(key), data)
	}); err != nil {
		s.mu.Lock()
		s.writeOffset--
		s.storedBytes -= size
		s.mu.Unlock()
		return false
	}

	s.notEmpty.broadcast()
	return true
}

// tryReadOne attempts a single non-blocking read, advancing past and
// skipping any poison records it encounters. ok is false only when the
// stage currently has no unread records.
func (s *Stage[T]) tryReadOne() (item T, ok bool) {
	for {
		s.mu.Lock()
		if s.readOffset >= s.writeOffset {
			s.mu.Unlock()
			var zero T
			return zero, false
		}
		key := s.readOffset
		s.readOffset++
		s.mu.Unlock()

		var data []byte
		err := s.database().View(func(tx *bolt.Tx) error {
			v := tx.Bucket(recordsBucket).Get(encodeKey(key))
			if v == nil {
				return fmt.Errorf("record missing for key %d", key)
			}
			data = append([]byte(nil), v...)
			return nil
		})
		if err != nil {
			slog.Error("diskbuffer: record unreadable, skipping as poison", "key", key, "error", err)
			s.markPoison()
			continue
		}

		decoded, derr := s.codec.Decode(data)
		if derr != nil {
			slog.Warn("diskbuffer: corrupt record, skipping", "key", key, "error", derr)
			s.markPoison()
			continue
		}

		s.mu.Lock()
		s.pendingKinds = append(s.pendingKinds, false)
		s.mu.Unlock()
		return decoded, true
	}
}

func (s *Stage[T]) markPoison() {
	s.mu.Lock()
	s.pendingKinds = append(s.pendingKinds, true)
	s.mu.Unlock()
}

func (s *Stage[T]) next(ctx context.Context) (item T, ok bool) {
	for {
		if item, ok := s.tryReadOne(); ok {
			return item, true
		}
		if s.isClosed() {
			var zero T
			return zero, false
		}
		wake := s.notEmpty.wait()
		select {
		case <-wake:
			continue
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

// ack advances the delete offset past n good (non-poison) records, also
// reclaiming any poison records immediately following them. Panics if n
// would advance past what has been read — an invariant violation by the
// caller.
func (s *Stage[T]) ack(n uint64) {
	if n == 0 {
		return
	}
	s.mu.Lock()
	var consumed, good uint64
	for good < n {
		if consumed >= uint64(len(s.pendingKinds)) {
			s.mu.Unlock()
			panic(fmt.Sprintf("diskbuffer: ack(%d) exceeds records read (delete_offset would exceed read_offset)", n))
		}
		if !s.pendingKinds[consumed] {
			good++
		}
		consumed++
	}
	for consumed < uint64(len(s.pendingKinds)) && s.pendingKinds[consumed] {
		consumed++
	}
	s.pendingKinds = s.pendingKinds[consumed:]
	s.deleteOffset += consumed
	s.mu.Unlock()

	select {
	case s.deleteNow <- struct{}{}:
	default:
	}
}

// Offsets reports the three offsets tracked by this stage, for tests and
// diagnostics — they must always satisfy
// `delete_offset ≤ read_offset ≤ write_offset`.
func (s *Stage[T]) Offsets() (write, read, del uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeOffset, s.readOffset, s.deleteOffset
}

// StoredBytes reports bytes currently stored on disk, not yet deleted.
func (s *Stage[T]) StoredBytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storedBytes
}

func (s *Stage[T]) deleteLoop() {
	defer close(s.deleterDone)
	ticker := time.NewTicker(deleteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runDeletePass()
		case <-s.deleteNow:
			s.runDeletePass()
		case <-s.stopDeleter:
			s.runDeletePass()
			return
		}
	}
}

func (s *Stage[T]) runDeletePass() {
	s.mu.Lock()
	from, to := s.physicallyDeleted, s.deleteOffset
	s.mu.Unlock()
	if to <= from {
		return
	}

	var freed uint64
	err := s.database().Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		for k := from; k < to; k++ {
			key := encodeKey(k)
			if v := b.Get(key); v != nil {
				freed += uint64(len(v))
			}
			if err := b.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("diskbuffer: delete pass failed", "error", err)
		return
	}

	s.mu.Lock()
	s.physicallyDeleted = to
	s.storedBytes -= freed
	s.reclaimable += freed
	needCompact := s.maxSize > 0 && s.reclaimable > s.maxSize/10
	s.mu.Unlock()

	s.writerWake.broadcast()

	if needCompact {
		if err := s.compact(); err != nil {
			slog.Error("diskbuffer: compaction failed", "error", err)
		}
	}
}

// compact rewrites the live records into a fresh bbolt file and atomically
// renames it into place, reclaiming disk space bbolt itself never returns
// to the filesystem. Same atomic temp-file-then-rename discipline as any
// other durable-file-save routine that can't risk a half-written file on
// crash.
func (s *Stage[T]) compact() error {
	s.mu.Lock()
	if s.compacting {
		s.mu.Unlock()
		return nil
	}
	s.compacting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.compacting = false
		s.reclaimable = 0
		s.mu.Unlock()
	}()

	dbPath := filepath.Join(s.dir, "buffer.db")
	tmpPath := filepath.Join(s.dir, ".buffer.compact.tmp")
	_ = os.Remove(tmpPath)

	tmpDB, err := bolt.Open(tmpPath, 0o600, nil)
	if err != nil {
		return fmt.Errorf("diskbuffer: open compaction file: %w", err)
	}

	err = tmpDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err == nil {
		err = s.database().View(func(srcTx *bolt.Tx) error {
			return tmpDB.Update(func(dstTx *bolt.Tx) error {
				src := srcTx.Bucket(recordsBucket)
				dst := dstTx.Bucket(recordsBucket)
				return src.ForEach(func(k, v []byte) error {
					return dst.Put(append([]byte(nil), k...), append([]byte(nil), v...))
				})
			})
		})
	}
	if err != nil {
		tmpDB.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("diskbuffer: copy live records: %w", err)
	}
	if err := tmpDB.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("diskbuffer: close compaction file: %w", err)
	}

	s.mu.Lock()
	live := s.db
	s.mu.Unlock()
	if err := live.Close(); err != nil {
		return fmt.Errorf("diskbuffer: close live db before compaction: %w", err)
	}
	if err := os.Rename(tmpPath, dbPath); err != nil {
		return fmt.Errorf("diskbuffer: rename compacted db into place: %w", err)
	}

	reopened, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("diskbuffer: reopen compacted db: %w", err)
	}
	s.mu.Lock()
	s.db = reopened
	s.mu.Unlock()
	return nil
}

var _ buffer.Stage[dummyItem] = (*Stage[dummyItem])(nil)

type dummyItem struct{}

func (dummyItem) ByteSize() int { return 0 }

// diskSender is the producer handle onto a disk Stage.
type diskSender[T buffer.Bufferable] struct {
	stage *Stage[T]
}

func (s *diskSender[T]) Send(ctx context.Context, item T) error { return s.stage.send(ctx, item) }
func (s *diskSender[T]) TrySend(item T) bool                    { return s.stage.trySend(item) }
func (s *diskSender[T]) Clone() buffer.StageSender[T] {
	panic(buffer.ErrMultiProducerUnsupported)
}
func (s *diskSender[T]) Close() error { return s.stage.closeSender() }

// diskReceiver is the single consumer handle onto a disk Stage.
type diskReceiver[T buffer.Bufferable] struct {
	stage *Stage[T]
}

func (r *diskReceiver[T]) Next(ctx context.Context) (T, bool) { return r.stage.next(ctx) }
func (r *diskReceiver[T]) TryNext() (T, bool)                 { return r.stage.tryReadOne() }
func (r *diskReceiver[T]) Len() int                           { return r.stage.queuedLen() }
func (r *diskReceiver[T]) Closed() bool                       { return r.stage.isClosed() }
