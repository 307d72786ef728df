package transform

import (
	"context"
	"log/slog"

	"firestige.xyz/otus/internal/buffer"
	"firestige.xyz/otus/internal/event"
)

// Dispatcher drives one Transform over one upstream edge: a single dispatch
// site per edge, the same shape as pipeline.Pipeline.processLoop driving
// processPacket once per received packet rather than branching per parser
// or payload kind.
type Dispatcher struct {
	id        string
	transform Transform
	in        *buffer.BufferReceiver[event.Event]
	senders   map[string]*buffer.BufferSender[event.Event]
}

// NewDispatcher builds a Dispatcher for id, reading from in and writing to
// the named downstream senders (the empty string key is the default port).
func NewDispatcher(id string, t Transform, in *buffer.BufferReceiver[event.Event], senders map[string]*buffer.BufferSender[event.Event]) *Dispatcher {
	return &Dispatcher{id: id, transform: t, in: in, senders: senders}
}

// InputUsage exposes the upstream edge's UsageHandle so the topology
// builder can export its counters to Prometheus.
func (d *Dispatcher) InputUsage() *buffer.UsageHandle {
	return d.in.Usage()
}

// Run drives the transform until ctx is cancelled or the upstream edge
// closes.
func (d *Dispatcher) Run(ctx context.Context) {
	switch d.transform.Kind() {
	case KindTask:
		d.runTask(ctx)
	case KindSync:
		d.runSync(ctx)
	default:
		d.runFunction(ctx)
	}
}

func (d *Dispatcher) runFunction(ctx context.Context) {
	f := d.transform.AsFunction()
	var out OutputBuffer
	for {
		e, ok := d.in.Next(ctx)
		if !ok {
			return
		}
		f.Transform(&out, e)
		if err := out.Flush(ctx, d.senders[defaultPort]); err != nil {
			slog.Error("transform: flush failed", "transform", d.id, "error", err)
			return
		}
	}
}

func (d *Dispatcher) runSync(ctx context.Context) {
	s := d.transform.AsSync()
	outputs := NewTransformOutputs(namedPortsExcludingDefault(d.senders))
	for {
		e, ok := d.in.Next(ctx)
		if !ok {
			return
		}
		s.Transform(outputs, e)
		if err := outputs.FlushAll(ctx, d.senders); err != nil {
			slog.Error("transform: flush failed", "transform", d.id, "error", err)
			return
		}
	}
}

// runTask hands the whole upstream edge over to the Task as a stream, and
// relays whatever it emits to the default downstream sender.
func (d *Dispatcher) runTask(ctx context.Context) {
	t := d.transform.AsTask()
	in := make(chan event.Event)
	out := make(chan event.Event)

	go func() {
		defer close(in)
		for {
			e, ok := d.in.Next(ctx)
			if !ok {
				return
			}
			select {
			case in <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.Run(ctx, in, out)
	}()

	sender := d.senders[defaultPort]
	for {
		select {
		case e, ok := <-out:
			if !ok {
				<-done
				return
			}
			if err := sender.Send(ctx, e); err != nil {
				slog.Error("transform: send failed", "transform", d.id, "error", err)
				return
			}
		case <-ctx.Done():
			<-done
			return
		}
	}
}

func namedPortsExcludingDefault(senders map[string]*buffer.BufferSender[event.Event]) []string {
	var names []string
	for name := range senders {
		if name != defaultPort {
			names = append(names, name)
		}
	}
	return names
}
