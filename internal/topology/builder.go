package topology

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"firestige.xyz/otus/internal/buffer"
	"firestige.xyz/otus/internal/diskbuffer"
	"firestige.xyz/otus/internal/event"
	"firestige.xyz/otus/internal/metrics"
	"firestige.xyz/otus/internal/shutdown"
	"firestige.xyz/otus/internal/sink"
	"firestige.xyz/otus/internal/source"
	"firestige.xyz/otus/internal/transform"
)

// BuildOptions carries the process-wide resources a Topology needs besides
// its Config — an explicit context object in place of global mutable
// state.
type BuildOptions struct {
	DataDir          string // disk buffer root (the config's data_dir)
	ShutdownDeadline time.Duration
}

// runningSource pairs a constructed Source with the shutdown machinery the
// Topology drives on its behalf (the watcher goroutine started in Start
// calls Wait/Release, so leaf sources need not).
type runningSource struct {
	id     string
	src    source.Source
	sender *source.SourceSender
	signal shutdown.ShutdownSignal
	done   chan error
}

type runningTransform struct {
	id         string
	dispatcher *transform.Dispatcher
	senders    map[string]*buffer.BufferSender[event.Event]
	done       chan struct{}
}

type runningSink struct {
	id     string
	snk    sink.Sink
	cancel context.CancelFunc
	done   chan error
}

// Topology is a fully built, runnable pipeline graph: every component
// constructed and wired, buffer edges composed, ready for Start/Stop in a
// dependency order generalized from a prior Task.Start/Task.Stop design
// (sinks up first and down last; sources up last and down first).
type Topology struct {
	coord *shutdown.Coordinator

	sources    []*runningSource
	transforms []*runningTransform
	sinks      []*runningSink

	sinkContexts map[string]sink.Context
	closers      []func() error // disk stages and other resources released on Stop

	dataDir          string
	shutdownDeadline time.Duration

	instrumentCancel context.CancelFunc
	instrumentDone   chan struct{}
}

// Build validates cfg, resolves every component's factory, constructs and
// wires the full graph, and returns a Topology ready to Start. No
// goroutines run yet.
func Build(cfg Config, opts BuildOptions) (*Topology, error) {
	g, err := buildGraph(cfg)
	if err != nil {
		return nil, err
	}

	t := &Topology{
		coord:            shutdown.NewCoordinator(),
		sinkContexts:     make(map[string]sink.Context, len(cfg.Sinks)),
		dataDir:          opts.DataDir,
		shutdownDeadline: opts.ShutdownDeadline,
	}
	if t.dataDir == "" {
		t.dataDir = "."
	}

	// ---- Phase: Resolve (fail fast on any unknown component type) ----
	sourceFactories := make(map[string]source.Factory, len(cfg.Sources))
	for id, sc := range cfg.Sources {
		f, err := GetSourceFactory(sc.Type)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", id, err)
		}
		sourceFactories[id] = f
	}
	transformFactories := make(map[string]TransformFactory, len(cfg.Transforms))
	for id, tc := range cfg.Transforms {
		f, err := GetTransformFactory(tc.Type)
		if err != nil {
			return nil, fmt.Errorf("transform %q: %w", id, err)
		}
		transformFactories[id] = f
	}
	sinkFactories := make(map[string]sink.Factory, len(cfg.Sinks))
	for id, sc := range cfg.Sinks {
		f, err := GetSinkFactory(sc.Type)
		if err != nil {
			return nil, fmt.Errorf("sink %q: %w", id, err)
		}
		sinkFactories[id] = f
	}

	// ---- Phase: Construct + Init (collapsed per Factory's contract) ----
	sourceInstances := make(map[string]source.Source, len(cfg.Sources))
	for id, sc := range cfg.Sources {
		inst, err := sourceFactories[id](sc.Options)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", id, err)
		}
		sourceInstances[id] = inst
	}
	transformInstances := make(map[string]transform.Transform, len(cfg.Transforms))
	for id, tc := range cfg.Transforms {
		inst, err := transformFactories[id](tc.Options)
		if err != nil {
			return nil, fmt.Errorf("transform %q: %w", id, err)
		}
		transformInstances[id] = inst
	}
	sinkInstances := make(map[string]sink.Sink, len(cfg.Sinks))
	for id, sc := range cfg.Sinks {
		inst, err := sinkFactories[id](sc.Options)
		if err != nil {
			return nil, fmt.Errorf("sink %q: %w", id, err)
		}
		sinkInstances[id] = inst
	}

	// Every source output must be read by something, or its events can
	// never leave the process.
	for id := range cfg.Sources {
		if _, ok := g.consumers[edgeRef{producerID: id}]; !ok {
			return nil, fmt.Errorf("%w: source %q has no consumer", ErrUnknownInput, id)
		}
	}
	// A Function/Task transform only ever writes its default port; if
	// nothing consumes it, the transform's output is unreachable.
	for id, inst := range transformInstances {
		if inst.Kind() == transform.KindSync {
			continue
		}
		if _, ok := g.consumers[edgeRef{producerID: id}]; !ok {
			return nil, fmt.Errorf("%w: transform %q's default output has no consumer", ErrUnknownInput, id)
		}
	}

	// ---- Phase: Assemble edges ----
	// Build one buffer per consumer (sink config wins; transforms default
	// to a single in-memory stage), then fan producers in via Clone when a
	// consumer declares more than one input.
	producerSenders := make(map[edgeRef]*buffer.BufferSender[event.Event])

	assembleConsumer := func(consumerID string, inputs []string, stages []BufferStageConfig) (*buffer.BufferReceiver[event.Event], *diskbuffer.Acker, error) {
		sender, receiver, acker, err := t.buildEdge(consumerID, stages)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", consumerID, err)
		}
		if len(inputs) > 1 && !sender.SupportsMultiProducer() {
			return nil, nil, fmt.Errorf("%w: %q fans in %d inputs onto a buffer that does not support multiple producers (disk-backed buffers allow only one)", ErrInvalidBufferStage, consumerID, len(inputs))
		}
		for i, raw := range inputs {
			ref := parseInput(raw)
			if i == 0 {
				producerSenders[ref] = sender
			} else {
				producerSenders[ref] = sender.Clone()
			}
		}
		return receiver, acker, nil
	}

	transformReceivers := make(map[string]*buffer.BufferReceiver[event.Event], len(cfg.Transforms))
	for _, id := range g.transformOrder {
		receiver, _, err := assembleConsumer(id, cfg.Transforms[id].Inputs, nil)
		if err != nil {
			return nil, err
		}
		transformReceivers[id] = receiver
	}

	for _, id := range g.sinkOrder {
		sc := cfg.Sinks[id]
		receiver, acker, err := assembleConsumer(id, sc.Inputs, sc.Buffer)
		if err != nil {
			return nil, err
		}
		t.sinkContexts[id] = sink.Context{In: receiver, Acker: acker}
	}

	// ---- Phase: Wire sources ----
	for id, inst := range sourceInstances {
		sender, ok := producerSenders[edgeRef{producerID: id}]
		if !ok {
			return nil, fmt.Errorf("%w: source %q has no consumer", ErrUnknownInput, id)
		}
		signal, _ := t.coord.Register(id, false)
		t.sources = append(t.sources, &runningSource{
			id:     id,
			src:    inst,
			sender: source.NewSourceSender(sender),
			signal: signal,
			done:   make(chan error, 1),
		})
	}

	// ---- Phase: Wire transforms ----
	for _, id := range g.transformOrder {
		inst := transformInstances[id]
		senders := make(map[string]*buffer.BufferSender[event.Event])
		for ref, sender := range producerSenders {
			if ref.producerID == id {
				senders[ref.port] = sender
			}
		}
		d := transform.NewDispatcher(id, inst, transformReceivers[id], senders)
		t.transforms = append(t.transforms, &runningTransform{id: id, dispatcher: d, senders: senders})
	}

	// ---- Phase: Wire sinks ----
	for _, id := range g.sinkOrder {
		t.sinks = append(t.sinks, &runningSink{id: id, snk: sinkInstances[id]})
	}

	return t, nil
}

// buildEdge composes stages (sink-configured, or a single default memory
// stage for a transform input) via internal/buffer's Builder, tracking disk
// stages for later Close.
func (t *Topology) buildEdge(edgeID string, stages []BufferStageConfig) (*buffer.BufferSender[event.Event], *buffer.BufferReceiver[event.Event], *diskbuffer.Acker, error) {
	if len(stages) == 0 {
		stages = []BufferStageConfig{{Type: "memory", MaxEvents: defaultMemoryCapacity, WhenFull: "block"}}
	}

	b := buffer.NewBuilder[event.Event]()
	var acker *diskbuffer.Acker

	for _, sc := range stages {
		whenFull, err := parseWhenFull(sc.WhenFull)
		if err != nil {
			return nil, nil, nil, err
		}

		switch sc.Type {
		case "", "memory":
			capacity := sc.MaxEvents
			if capacity <= 0 {
				capacity = defaultMemoryCapacity
			}
			b.Stage(buffer.NewMemoryStage[event.Event](capacity), whenFull)
		case "disk":
			maxSize := sc.MaxSize
			if maxSize == 0 {
				maxSize = defaultDiskMaxSize
			}
			dir := filepath.Join(t.dataDir, "buffer", edgeID)
			stage, err := diskbuffer.Open(dir, maxSize, eventCodec)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("open disk buffer: %w", err)
			}
			acker = stage.Acker()
			t.closers = append(t.closers, stage.Close)
			b.StageWithAcks(stage, whenFull)
		default:
			return nil, nil, nil, fmt.Errorf("%w: %q", ErrInvalidBufferStage, sc.Type)
		}
	}

	sender, receiver, err := b.Build(edgeID)
	if err != nil {
		return nil, nil, nil, err
	}
	return sender, receiver, acker, nil
}

func parseWhenFull(s string) (buffer.WhenFull, error) {
	switch s {
	case "", "block":
		return buffer.Block, nil
	case "drop_newest":
		return buffer.DropNewest, nil
	case "overflow":
		return buffer.Overflow, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidWhenFull, s)
	}
}

// Start launches every component's goroutine in the same order as the
// design this generalizes: sinks first (so nothing downstream is ever started later than its
// consumer), then transforms, then sources last. Each source also gets a
// watcher goroutine that owns its shutdown.Token lifecycle: it waits for the coordinator's
// begin signal, cancels the source's derived context, waits for Run to
// return, then releases the token — the source implementation itself never
// touches Wait/Token.
func (t *Topology) Start(ctx context.Context) error {
	for _, s := range t.sinks {
		s := s
		sctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.done = make(chan error, 1)
		metrics.ComponentStatus.WithLabelValues(s.id, "sink").Set(metrics.ComponentRunning)
		go func() {
			err := s.snk.Run(sctx, t.sinkContexts[s.id])
			if err != nil {
				metrics.ComponentStatus.WithLabelValues(s.id, "sink").Set(metrics.ComponentError)
			} else {
				metrics.ComponentStatus.WithLabelValues(s.id, "sink").Set(metrics.ComponentStopped)
			}
			s.done <- err
		}()
	}

	for _, tr := range t.transforms {
		tr := tr
		tr.done = make(chan struct{})
		metrics.ComponentStatus.WithLabelValues(tr.id, "transform").Set(metrics.ComponentRunning)
		go func() {
			defer close(tr.done)
			defer metrics.ComponentStatus.WithLabelValues(tr.id, "transform").Set(metrics.ComponentStopped)
			tr.dispatcher.Run(ctx)
		}()
	}

	for _, s := range t.sources {
		s := s
		srcCtx, cancel := context.WithCancel(ctx)
		runDone := make(chan struct{})

		metrics.ComponentStatus.WithLabelValues(s.id, "source").Set(metrics.ComponentRunning)
		go func() {
			defer close(runDone)
			err := s.src.Run(srcCtx, source.Context{Shutdown: s.signal, Out: s.sender})
			if err != nil {
				metrics.ComponentStatus.WithLabelValues(s.id, "source").Set(metrics.ComponentError)
			} else {
				metrics.ComponentStatus.WithLabelValues(s.id, "source").Set(metrics.ComponentStopped)
			}
			s.done <- err
		}()

		go func() {
			token, ok := s.signal.Wait(context.Background())
			cancel()
			<-runDone
			if ok {
				token.Release()
			}
		}()
	}

	instrumentCtx, cancel := context.WithCancel(context.Background())
	t.instrumentCancel = cancel
	t.instrumentDone = make(chan struct{})
	go func() {
		defer close(t.instrumentDone)
		t.runInstrumentation(instrumentCtx)
	}()

	slog.Info("topology started", "sources", len(t.sources), "transforms", len(t.transforms), "sinks", len(t.sinks))
	return nil
}

// Stop shuts the topology down in reverse dependency order, mirroring
// Task.Stop: sources stop first (no more input), then transforms drain and
// exit once their upstream edges close, then sinks flush and exit once
// their upstream edges close.
func (t *Topology) Stop() error {
	return t.stop(t.shutdownDeadline)
}

// StopForce shuts the topology down the same way Stop does, but gives each
// source deadline instead of the graceful deadline captured at Build time —
// used when a caller needs to bypass the configured grace period (e.g. a
// forced-shutdown signal) rather than wait out the usual budget.
func (t *Topology) StopForce(deadline time.Duration) error {
	return t.stop(deadline)
}

func (t *Topology) stop(deadline time.Duration) error {
	var wg sync.WaitGroup
	for _, s := range t.sources {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			t.coord.Shutdown(s.id, deadline)
			metrics.ShutdownDurationSeconds.WithLabelValues(s.id).Observe(time.Since(start).Seconds())
			if err := <-s.done; err != nil {
				slog.Warn("source stopped with error", "source", s.id, "error", err)
			}
			if err := s.sender.Close(); err != nil {
				slog.Warn("failed to close source's output edge", "source", s.id, "error", err)
			}
		}()
	}
	wg.Wait()

	for _, tr := range t.transforms {
		<-tr.done
		for _, sender := range tr.senders {
			if err := sender.Close(); err != nil {
				slog.Warn("failed to close transform's output edge", "transform", tr.id, "error", err)
			}
		}
	}

	for _, s := range t.sinks {
		s.cancel()
		if err := <-s.done; err != nil {
			slog.Warn("sink stopped with error", "sink", s.id, "error", err)
		}
	}

	for _, closer := range t.closers {
		if err := closer(); err != nil {
			slog.Warn("failed to close buffer resource", "error", err)
		}
	}

	if t.instrumentCancel != nil {
		t.instrumentCancel()
		<-t.instrumentDone
	}

	slog.Info("topology stopped")
	return nil
}
