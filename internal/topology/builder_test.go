package topology_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/event"
	"firestige.xyz/otus/internal/sink"
	"firestige.xyz/otus/internal/source"
	"firestige.xyz/otus/internal/topology"
	_ "firestige.xyz/otus/internal/transform/remap"
)

// fixedSource emits its configured messages once, then idles until shutdown
// begins — standing in for a real source so the test controls exactly how
// many events flow without depending on wall-clock ticker intervals.
type fixedSource struct {
	messages []string
}

func (f *fixedSource) Run(ctx context.Context, sc source.Context) error {
	for _, m := range f.messages {
		if err := sc.Out.Send(ctx, event.NewLog(event.LogPayload{Message: m, Fields: map[string]any{}})); err != nil {
			return err
		}
	}
	select {
	case <-ctx.Done():
	case <-sc.Shutdown.Begin():
	}
	return nil
}

// collectingSink records every event it drains and closes done once its
// edge closes.
type collectingSink struct {
	mu   sync.Mutex
	got  []event.Event
	done chan struct{}
}

func newCollectingSink() *collectingSink {
	return &collectingSink{done: make(chan struct{})}
}

func (c *collectingSink) Run(ctx context.Context, sc sink.Context) error {
	defer close(c.done)
	for {
		e, ok := sc.In.Next(ctx)
		if !ok {
			return nil
		}
		e.Metadata.Finalize(event.Delivered)
		c.mu.Lock()
		c.got = append(c.got, e)
		c.mu.Unlock()
	}
}

func (c *collectingSink) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.got))
	for i, e := range c.got {
		out[i] = e.Log.Message
	}
	return out
}

func init() {
	topology.RegisterSource("topology-test-fixed", func(raw map[string]any) (source.Source, error) {
		msgs, _ := raw["messages"].([]string)
		return &fixedSource{messages: msgs}, nil
	})
}

var sharedSink = newCollectingSink()

func init() {
	topology.RegisterSink("topology-test-collect", func(map[string]any) (sink.Sink, error) {
		return sharedSink, nil
	})
}

func TestBuildStartStopRoundTrip(t *testing.T) {
	cfg := topology.Config{
		Sources: map[string]topology.SourceConfig{
			"in": {Type: "topology-test-fixed", Options: map[string]any{"messages": []string{"alpha", "beta", "gamma"}}},
		},
		Transforms: map[string]topology.TransformConfig{
			"upper": {
				Type:   "remap",
				Inputs: []string{"in"},
				Options: map[string]any{
					"ops": []map[string]any{{"kind": "set", "to": "stage", "value": "transformed"}},
				},
			},
		},
		Sinks: map[string]topology.SinkConfig{
			"out": {Type: "topology-test-collect", Inputs: []string{"upper"}},
		},
	}

	topo, err := topology.Build(cfg, topology.BuildOptions{DataDir: t.TempDir(), ShutdownDeadline: time.Second})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, topo.Start(ctx))

	select {
	case <-sharedSink.done:
		t.Fatal("sink finished before shutdown was requested")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, topo.Stop())

	select {
	case <-sharedSink.done:
	case <-time.After(time.Second):
		t.Fatal("sink never observed its edge closing")
	}

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, sharedSink.messages())
	for _, e := range sharedSink.got {
		assert.Equal(t, "transformed", e.Log.Fields["stage"])
	}
}

func TestBuildRejectsEmptyConfig(t *testing.T) {
	_, err := topology.Build(topology.Config{}, topology.BuildOptions{})
	assert.ErrorIs(t, err, topology.ErrEmptyTopology)
}

func TestBuildRejectsUnknownComponentType(t *testing.T) {
	cfg := topology.Config{
		Sources: map[string]topology.SourceConfig{"in": {Type: "does-not-exist"}},
		Sinks:   map[string]topology.SinkConfig{"out": {Type: "topology-test-collect", Inputs: []string{"in"}}},
	}
	_, err := topology.Build(cfg, topology.BuildOptions{})
	assert.ErrorIs(t, err, topology.ErrUnknownComponent)
}
