package event

import "sync/atomic"

// Status is the aggregated delivery outcome reported to a BatchNotifier.
type Status uint8

const (
	// Delivered means every event in the batch was confirmed accepted
	// downstream.
	Delivered Status = iota
	// Errored means some event hit a transient failure that a higher layer
	// will retry; the source should treat the batch as not-yet-delivered.
	Errored
	// Rejected means some event was permanently refused (schema violation,
	// 4xx, disk buffer full under DropNewest).
	Rejected
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Errored:
		return "errored"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// worse returns the worst-wins combination of two statuses: Rejected beats
// Errored beats Delivered.
func worse(a, b Status) Status {
	if a > b {
		return a
	}
	return b
}

// BatchNotifier is the producer-side handle a source attaches, cloned, to
// every event in a logical batch. When the last finalizer referencing this
// notifier drops, the aggregated status is published to the paired
// NotifierReceiver.
type BatchNotifier struct {
	refs     atomic.Int64
	status   atomic.Uint32 // worst Status seen so far; zero value Delivered is the correct starting point
	resolved chan struct{}
}

// NotifierReceiver is the consumer-side half of a BatchNotifier, awaited by
// the source that created the batch.
type NotifierReceiver struct {
	n *BatchNotifier
}

// NewBatchNotifier creates a notifier/receiver pair for one logical batch.
// The caller's own reference is not counted — attach the notifier to each
// event via EventFinalizer before dropping any local references.
func NewBatchNotifier() (*BatchNotifier, *NotifierReceiver) {
	n := &BatchNotifier{resolved: make(chan struct{})}
	return n, &NotifierReceiver{n: n}
}

// Wait blocks until every finalizer referencing this batch has reported,
// and returns the aggregated, worst-wins status.
func (r *NotifierReceiver) Wait() Status {
	<-r.n.resolved
	return Status(r.n.status.Load())
}

// Done returns a channel closed once the batch has resolved, for use in a
// select alongside shutdown signals.
func (r *NotifierReceiver) Done() <-chan struct{} {
	return r.n.resolved
}

// TryStatus returns the resolved status and true if the batch has already
// resolved, or (0, false) if it is still pending.
func (r *NotifierReceiver) TryStatus() (Status, bool) {
	select {
	case <-r.n.resolved:
		return Status(r.n.status.Load()), true
	default:
		return 0, false
	}
}

// report contributes status from one finalizer drop and, if the reference
// count reaches zero, publishes the aggregated result exactly once.
func (n *BatchNotifier) report(status Status) {
	for {
		old := n.status.Load()
		next := uint32(worse(Status(old), status))
		if next == old {
			break
		}
		if n.status.CompareAndSwap(old, next) {
			break
		}
	}
	if n.refs.Add(-1) == 0 {
		close(n.resolved)
	}
}

// EventFinalizer is a single reference to a BatchNotifier, carried inside an
// event's Metadata. Dropping it (via finalize) decrements the notifier's
// refcount and contributes this event's delivery status.
type EventFinalizer struct {
	notifier *BatchNotifier
}

// NewFinalizer attaches a new reference to n. Call once per event added to
// n's batch, then call n's receiver's Wait after the source stops adding
// events.
func NewFinalizer(n *BatchNotifier) *EventFinalizer {
	n.refs.Add(1)
	return &EventFinalizer{notifier: n}
}

// clone increments the notifier's refcount and returns a new handle to the
// same notifier, used when an event carrying this finalizer is cloned or
// split.
func (f *EventFinalizer) clone() *EventFinalizer {
	f.notifier.refs.Add(1)
	return &EventFinalizer{notifier: f.notifier}
}

// finalizerList is the ref-counted, append-only list of finalizers carried
// by an event's Metadata. It has no cycles by construction: status
// resolution is driven purely by each BatchNotifier's own refcount reaching
// zero, never by traversing this list.
type finalizerList struct {
	items []*EventFinalizer
}

func newFinalizerList() *finalizerList {
	return &finalizerList{}
}

func (l *finalizerList) add(f *EventFinalizer) {
	l.items = append(l.items, f)
}

// clone deep-clones every finalizer reference (bumping each notifier's
// refcount), used when Metadata.Clone is called.
func (l *finalizerList) clone() *finalizerList {
	if l == nil || len(l.items) == 0 {
		return newFinalizerList()
	}
	out := make([]*EventFinalizer, len(l.items))
	for i, f := range l.items {
		out[i] = f.clone()
	}
	return &finalizerList{items: out}
}

// append moves other's finalizers onto l: the references change owner
// rather than being cloned, and other is left empty, so finalizing l
// resolves them. Used when transforms merge events.
func (l *finalizerList) append(other *finalizerList) {
	if other == nil || other == l {
		return
	}
	l.items = append(l.items, other.items...)
	other.items = nil
}

// finalize reports status to every notifier referenced by l and releases
// l's references. Call exactly once.
func (l *finalizerList) finalize(status Status) {
	for _, f := range l.items {
		f.notifier.report(status)
	}
	l.items = nil
}
