// Package event defines the core value type that flows through the pipeline
// and the finalizer/notifier machinery that reports delivery status back to
// sources.
package event

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the payload carried by an Event.
type Kind uint8

const (
	// KindLog carries an unstructured or semi-structured log record.
	KindLog Kind = iota
	// KindMetric carries a single metric sample.
	KindMetric
	// KindTrace carries a span or trace fragment.
	KindTrace
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindMetric:
		return "metric"
	case KindTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// LogPayload is the payload carried by a KindLog event.
type LogPayload struct {
	Message   string
	Timestamp time.Time
	Fields    map[string]any
}

// MetricPayload is the payload carried by a KindMetric event.
type MetricPayload struct {
	Name      string
	Timestamp time.Time
	Tags      map[string]string
	Value     float64
}

// TracePayload is the payload carried by a KindTrace event.
type TracePayload struct {
	TraceID   string
	SpanID    string
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Tags      map[string]string
}

// SourceInfo holds fields attributed to the source that produced an event,
// such as an upstream API key, never touched by transforms.
type SourceInfo struct {
	SourceID string
	Fields   map[string]string
}

// Metadata travels alongside an Event's payload. It never carries payload
// data itself, only delivery bookkeeping.
type Metadata struct {
	finalizers *finalizerList
	Source     SourceInfo
}

// NewMetadata returns empty metadata with no attached finalizers.
func NewMetadata() Metadata {
	return Metadata{finalizers: newFinalizerList()}
}

// AddFinalizer attaches f, so that the status this metadata (or a clone or
// merge of it) is finalized with is reported to f's notifier.
func (m *Metadata) AddFinalizer(f *EventFinalizer) {
	if m.finalizers == nil {
		m.finalizers = newFinalizerList()
	}
	m.finalizers.add(f)
}

// Clone returns metadata that shares the same finalizer references (refcount
// bumped on each referenced notifier, not a deep copy of status).
func (m Metadata) Clone() Metadata {
	return Metadata{
		finalizers: m.finalizers.clone(),
		Source:     m.Source,
	}
}

// Merge concatenates the finalizer lists of m and other, as spec'd for
// transforms that combine multiple events into one.
func (m *Metadata) Merge(other Metadata) {
	if m.finalizers == nil {
		m.finalizers = newFinalizerList()
	}
	m.finalizers.append(other.finalizers)
}

// Split returns n independent clones of m's finalizer list, for transforms
// that explode one event into several children that all share delivery fate
// with the parent batch.
func (m Metadata) Split(n int) []Metadata {
	out := make([]Metadata, n)
	for i := range out {
		out[i] = m.Clone()
	}
	return out
}

// Finalize drops every finalizer referenced by this metadata, reporting
// status to their notifiers. Call exactly once, from whichever component
// last holds the event (typically a sink, on confirmed delivery or
// rejection).
func (m *Metadata) Finalize(status Status) {
	if m.finalizers == nil {
		return
	}
	m.finalizers.finalize(status)
	m.finalizers = nil
}

// Event is the tagged-union value that moves through buffers and transforms.
// Only one of the payload fields is valid, selected by Kind.
type Event struct {
	ID       uuid.UUID
	Kind     Kind
	Log      *LogPayload
	Metric   *MetricPayload
	Trace    *TracePayload
	Metadata Metadata
}

// NewLog constructs a log event with fresh, empty metadata.
func NewLog(payload LogPayload) Event {
	return Event{ID: uuid.New(), Kind: KindLog, Log: &payload, Metadata: NewMetadata()}
}

// NewMetric constructs a metric event with fresh, empty metadata.
func NewMetric(payload MetricPayload) Event {
	return Event{ID: uuid.New(), Kind: KindMetric, Metric: &payload, Metadata: NewMetadata()}
}

// NewTrace constructs a trace event with fresh, empty metadata.
func NewTrace(payload TracePayload) Event {
	return Event{ID: uuid.New(), Kind: KindTrace, Trace: &payload, Metadata: NewMetadata()}
}

// Clone returns a copy of e whose Metadata shares finalizer references with
// e's (see Metadata.Clone); the payload struct and its top-level Fields/Tags
// map are copied since they are mutated independently by parallel transform
// invocations. Values nested inside those maps are shared.
func (e Event) Clone() Event {
	clone := e
	clone.Metadata = e.Metadata.Clone()
	if e.Log != nil {
		l := *e.Log
		l.Fields = maps.Clone(e.Log.Fields)
		clone.Log = &l
	}
	if e.Metric != nil {
		m := *e.Metric
		m.Tags = maps.Clone(e.Metric.Tags)
		clone.Metric = &m
	}
	if e.Trace != nil {
		t := *e.Trace
		t.Tags = maps.Clone(e.Trace.Tags)
		clone.Trace = &t
	}
	return clone
}

// ByteSize estimates the wire size of e for buffer capacity accounting. It
// is intentionally approximate — exact accounting would require encoding,
// which the buffer layer must not do just to measure.
func (e Event) ByteSize() int {
	const overhead = 64
	size := overhead
	switch e.Kind {
	case KindLog:
		if e.Log != nil {
			size += len(e.Log.Message)
			for k, v := range e.Log.Fields {
				size += len(k) + estimateAnySize(v)
			}
		}
	case KindMetric:
		if e.Metric != nil {
			size += len(e.Metric.Name)
			for k, v := range e.Metric.Tags {
				size += len(k) + len(v)
			}
		}
	case KindTrace:
		if e.Trace != nil {
			size += len(e.Trace.TraceID) + len(e.Trace.SpanID) + len(e.Trace.Name)
			for k, v := range e.Trace.Tags {
				size += len(k) + len(v)
			}
		}
	}
	return size
}

func estimateAnySize(v any) int {
	switch val := v.(type) {
	case string:
		return len(val)
	default:
		return 8
	}
}

// Array is a batch of events moved as a unit: the array variant the
// sender/receiver edge API accepts alongside single events.
type Array []Event

// ByteSize sums the size of every event in the array.
func (a Array) ByteSize() int {
	total := 0
	for _, e := range a {
		total += e.ByteSize()
	}
	return total
}

// Finalize finalizes every event in the array with the same status.
func (a Array) Finalize(status Status) {
	for i := range a {
		a[i].Metadata.Finalize(status)
	}
}
