// Package console implements a sink that writes encoded events to an
// io.Writer — the simplest possible reporter, used here for local
// debugging and the graph/validate demo topologies.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"firestige.xyz/otus/internal/event"
	"firestige.xyz/otus/internal/metrics"
	"firestige.xyz/otus/internal/sink"
)

// Config configures a Console sink.
type Config struct {
	// Target selects the destination: "stdout" (default) or "stderr".
	Target string `mapstructure:"target"`
}

// Console writes each event as one JSON line to w, resolving Delivered once
// the line is written — writing to a local stream is its confirmation — and
// Errored if encoding or writing the line fails.
type Console struct {
	w    io.Writer
	name string // metrics label, e.g. "console:stdout"
}

// New builds a Console sink writing to cfg.Target.
func New(cfg Config) (*Console, error) {
	target := cfg.Target
	if target == "" {
		target = "stdout"
	}
	var w io.Writer
	switch target {
	case "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		return nil, fmt.Errorf("console sink: unknown target %q (want stdout or stderr)", cfg.Target)
	}
	c := NewWriter(w)
	c.name = "console:" + target
	return c, nil
}

// NewWriter builds a Console sink writing to an arbitrary io.Writer,
// bypassing Config entirely — used directly by tests and by any future
// caller embedding a Console sink in a non-stdio context.
func NewWriter(w io.Writer) *Console {
	return &Console{w: w, name: "console:writer"}
}

type encodedEvent struct {
	ID      string         `json:"id"`
	Kind    string         `json:"kind"`
	Message string         `json:"message,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	Name    string         `json:"name,omitempty"`
	Value   float64        `json:"value,omitempty"`
}

// Run drains sc.In, writing each event as a JSON line until the edge
// closes or ctx is cancelled.
func (c *Console) Run(ctx context.Context, sc sink.Context) error {
	enc := json.NewEncoder(c.w)

	for {
		e, ok := sc.In.Next(ctx)
		if !ok {
			return nil
		}

		out := encode(e)
		if err := enc.Encode(out); err != nil {
			e.Metadata.Finalize(event.Errored)
			metrics.SinkErroredTotal.WithLabelValues(c.name, "encode").Inc()
			continue
		}

		e.Metadata.Finalize(event.Delivered)
		metrics.SinkDeliveredTotal.WithLabelValues(c.name).Inc()
		if sc.Acker != nil {
			sc.Acker.Ack(1)
		}
	}
}

func encode(e event.Event) encodedEvent {
	out := encodedEvent{ID: e.ID.String(), Kind: e.Kind.String()}
	switch e.Kind {
	case event.KindLog:
		if e.Log != nil {
			out.Message = e.Log.Message
			out.Fields = e.Log.Fields
		}
	case event.KindMetric:
		if e.Metric != nil {
			out.Name = e.Metric.Name
			out.Value = e.Metric.Value
		}
	case event.KindTrace:
		if e.Trace != nil {
			out.Name = e.Trace.Name
		}
	}
	return out
}
