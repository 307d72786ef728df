package transform_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/buffer"
	"firestige.xyz/otus/internal/event"
	"firestige.xyz/otus/internal/transform"
)

func newEdge(t *testing.T, capacity int) (*buffer.BufferSender[event.Event], *buffer.BufferReceiver[event.Event]) {
	t.Helper()
	sender, receiver, err := buffer.NewBuilder[event.Event]().
		Stage(buffer.NewMemoryStage[event.Event](capacity), buffer.Block).
		Build("test-edge")
	require.NoError(t, err)
	return sender, receiver
}

// identityFunction passes every event through unchanged, the Function
// variant used to check that for any topology with one source, identity
// transform, and one sink over a memory buffer, events out equal events in
// in order.
type identityFunction struct{}

func (identityFunction) Transform(out *transform.OutputBuffer, e event.Event) { out.Push(e) }
func (identityFunction) Clone() transform.Function                           { return identityFunction{} }

func TestDispatcherFunctionIdentityRoundTrip(t *testing.T) {
	in, feed := newEdge(t, 8)
	out, drain := newEdge(t, 8)

	d := transform.NewDispatcher("identity", transform.NewFunction(identityFunction{}),
		feed, map[string]*buffer.BufferSender[event.Event]{"": out})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	msgs := []string{"first", "second", "third"}
	for _, m := range msgs {
		require.NoError(t, in.Send(ctx, event.NewLog(event.LogPayload{Message: m})))
	}
	require.NoError(t, in.Close())

	for _, want := range msgs {
		e, ok := drain.Next(ctx)
		require.True(t, ok)
		assert.Equal(t, want, e.Log.Message)
	}
}

func TestDispatcherInputUsageExposesUpstreamEdgeCounters(t *testing.T) {
	in, feed := newEdge(t, 8)
	out, _ := newEdge(t, 8)

	d := transform.NewDispatcher("identity", transform.NewFunction(identityFunction{}),
		feed, map[string]*buffer.BufferSender[event.Event]{"": out})

	usage := d.InputUsage()
	require.NotNil(t, usage)

	ctx := context.Background()
	require.NoError(t, in.Send(ctx, event.NewLog(event.LogPayload{Message: "hi"})))
	require.NoError(t, in.Close())

	assert.Equal(t, uint64(1), usage.Snapshot().ReceivedEvents)
}

// upperCaseSync writes every log event's uppercased message to the "upper"
// named port and passes the original through the default port, exercising
// the Sync variant's multi-port fan-out.
type upperCaseSync struct{}

func (upperCaseSync) Transform(out *transform.TransformOutputs, e event.Event) {
	out.Default().Push(e)
	if e.Kind == event.KindLog {
		upper := e.Clone()
		upper.Log.Message = toUpper(e.Log.Message)
		out.Port("upper").Push(upper)
	}
}

func (upperCaseSync) Clone() transform.Sync { return upperCaseSync{} }

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

func TestDispatcherSyncFansOutToNamedPort(t *testing.T) {
	in, feed := newEdge(t, 8)
	defaultOut, defaultDrain := newEdge(t, 8)
	upperOut, upperDrain := newEdge(t, 8)

	d := transform.NewDispatcher("upper", transform.NewSync(upperCaseSync{}),
		feed, map[string]*buffer.BufferSender[event.Event]{"": defaultOut, "upper": upperOut})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.NoError(t, in.Send(ctx, event.NewLog(event.LogPayload{Message: "hello"})))
	require.NoError(t, in.Close())

	e, ok := defaultDrain.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "hello", e.Log.Message)

	u, ok := upperDrain.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "HELLO", u.Log.Message)
}

// countingTask emits one metric event summarizing how many events it saw,
// once its input closes, exercising the Task variant's stream-to-stream,
// windowed-aggregation shape.
type countingTask struct{}

func (countingTask) Run(ctx context.Context, in <-chan event.Event, out chan<- event.Event) {
	count := 0
	for range in {
		count++
	}
	select {
	case out <- event.NewMetric(event.MetricPayload{Name: "count", Value: float64(count)}):
	case <-ctx.Done():
	}
	close(out)
}

func TestDispatcherTaskAggregatesStream(t *testing.T) {
	in, feed := newEdge(t, 8)
	out, drain := newEdge(t, 8)

	d := transform.NewDispatcher("counter", transform.NewTask(countingTask{}),
		feed, map[string]*buffer.BufferSender[event.Event]{"": out})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, in.Send(ctx, event.NewLog(event.LogPayload{Message: "x"})))
	}
	require.NoError(t, in.Close())

	e, ok := drain.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, event.KindMetric, e.Kind)
	assert.Equal(t, float64(3), e.Metric.Value)
}

func TestTransformOutputsPortPanicsOnUnknownPort(t *testing.T) {
	outputs := transform.NewTransformOutputs([]string{"known"})
	assert.Panics(t, func() {
		outputs.Port("unknown")
	})
}

func TestTransformAsWrongVariantPanics(t *testing.T) {
	fn := transform.NewFunction(identityFunction{})
	assert.Panics(t, func() { fn.AsSync() })
	assert.Panics(t, func() { fn.AsTask() })

	task := transform.NewTask(countingTask{})
	assert.Panics(t, func() { task.AsFunction() })
	assert.Panics(t, func() { task.AsSync() })
}

func TestOutputBufferFlushDrainsInOrder(t *testing.T) {
	sender, receiver := newEdge(t, 8)
	var buf transform.OutputBuffer
	buf.Push(event.NewLog(event.LogPayload{Message: "a"}))
	buf.Push(event.NewLog(event.LogPayload{Message: "b"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, buf.Flush(ctx, sender))
	assert.Equal(t, 0, buf.Len())

	e1, ok := receiver.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "a", e1.Log.Message)
	e2, ok := receiver.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "b", e2.Log.Message)
}
