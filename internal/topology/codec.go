package topology

import (
	"encoding/json"

	"firestige.xyz/otus/internal/diskbuffer"
	"firestige.xyz/otus/internal/event"
)

// wireEvent is the on-disk representation of an Event: payload only.
// Metadata (finalizers) is never persisted — durability is scoped to the
// disk buffer's bytes, not to in-flight delivery bookkeeping, so a process
// restart always hands a freshly-finalized Metadata to whatever reads the
// record back.
type wireEvent struct {
	Kind   event.Kind           `json:"kind"`
	Log    *event.LogPayload    `json:"log,omitempty"`
	Metric *event.MetricPayload `json:"metric,omitempty"`
	Trace  *event.TracePayload  `json:"trace,omitempty"`
}

// eventCodec is the diskbuffer.Codec every disk-backed edge in a topology
// uses, encoding each record as a serialized event value.
var eventCodec = diskbuffer.Codec[event.Event]{
	Encode: func(e event.Event) ([]byte, error) {
		return json.Marshal(wireEvent{Kind: e.Kind, Log: e.Log, Metric: e.Metric, Trace: e.Trace})
	},
	Decode: func(b []byte) (event.Event, error) {
		var w wireEvent
		if err := json.Unmarshal(b, &w); err != nil {
			return event.Event{}, err
		}
		e := event.Event{Kind: w.Kind, Log: w.Log, Metric: w.Metric, Trace: w.Trace, Metadata: event.NewMetadata()}
		return e, nil
	},
}
