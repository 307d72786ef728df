package transform

import (
	"context"
	"fmt"

	"firestige.xyz/otus/internal/buffer"
	"firestige.xyz/otus/internal/event"
)

// defaultPort is the key TransformOutputs uses for the unnamed output.
const defaultPort = ""

// OutputBuffer is an append-only buffer of events flushed to the downstream
// BufferSender on every scheduling tick, generalized from a fixed-capacity
// batch buffer (originally a bounded SIP/RTP context buffer) into an
// unbounded append-per-tick buffer shared by every transform variant.
type OutputBuffer struct {
	events []event.Event
}

// Push appends e to the buffer.
func (b *OutputBuffer) Push(e event.Event) {
	b.events = append(b.events, e)
}

// Len reports how many events are currently buffered.
func (b *OutputBuffer) Len() int { return len(b.events) }

// Flush drains the buffer into sender in order, blocking on backpressure
// exactly as a direct downstream send would — this is intentional,
// propagating pressure back to the source.
func (b *OutputBuffer) Flush(ctx context.Context, sender *buffer.BufferSender[event.Event]) error {
	for _, e := range b.events {
		if err := sender.Send(ctx, e); err != nil {
			return err
		}
	}
	b.events = b.events[:0]
	return nil
}

// TransformOutputs holds one OutputBuffer per declared named output port
// plus the default unnamed port, keyed the way pkg/plugin.Metadata declares
// named ports on a plugin.
type TransformOutputs struct {
	ports map[string]*OutputBuffer
}

// NewTransformOutputs creates a TransformOutputs with the default port plus
// one port per name in namedPorts.
func NewTransformOutputs(namedPorts []string) *TransformOutputs {
	ports := make(map[string]*OutputBuffer, len(namedPorts)+1)
	ports[defaultPort] = &OutputBuffer{}
	for _, p := range namedPorts {
		ports[p] = &OutputBuffer{}
	}
	return &TransformOutputs{ports: ports}
}

// Default returns the default (unnamed) output port's buffer.
func (o *TransformOutputs) Default() *OutputBuffer { return o.ports[defaultPort] }

// Port returns the named output port's buffer. Writing to an unknown port
// is a bug in the calling transform and panics.
func (o *TransformOutputs) Port(name string) *OutputBuffer {
	b, ok := o.ports[name]
	if !ok {
		panic(fmt.Sprintf("transform: write to undeclared output port %q", name))
	}
	return b
}

// FlushAll drains every non-empty port's buffer into its corresponding
// sender. A port with no configured sender (nothing wired downstream) is
// silently skipped, matching an unconnected named output being a no-op.
func (o *TransformOutputs) FlushAll(ctx context.Context, senders map[string]*buffer.BufferSender[event.Event]) error {
	for port, buf := range o.ports {
		if buf.Len() == 0 {
			continue
		}
		sender, ok := senders[port]
		if !ok {
			continue
		}
		if err := buf.Flush(ctx, sender); err != nil {
			return err
		}
	}
	return nil
}
