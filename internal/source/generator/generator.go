// Package generator implements a synthetic demo source producing log events
// at a configurable rate. There is no packet-capture analog for a synthetic
// generator (a capturer always reads from a real NIC), so this is built
// fresh in the same Init/Run plugin lifecycle idiom, standing in for the
// "produces a stream of events" contract used by topology tests and the
// graph/validate subcommands.
package generator

import (
	"context"
	"fmt"
	"time"

	"firestige.xyz/otus/internal/event"
	"firestige.xyz/otus/internal/source"
)

const defaultInterval = time.Second

// Config configures a Generator, decoded from topology YAML via
// mapstructure the same way every plugin's Init(map[string]any) does.
type Config struct {
	Interval string         `mapstructure:"interval"`
	Message  string         `mapstructure:"message"`
	Fields   map[string]any `mapstructure:"fields"`
	Count    int            `mapstructure:"count"` // 0 = unbounded
}

// Generator produces KindLog events at a fixed interval until its count is
// exhausted (if set), ctx is cancelled, or shutdown begins.
type Generator struct {
	interval time.Duration
	message  string
	fields   map[string]any
	count    int

	emitted int
}

// New validates cfg and returns a ready-to-run Generator.
func New(cfg Config) (*Generator, error) {
	interval := defaultInterval
	if cfg.Interval != "" {
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("generator: invalid interval %q: %w", cfg.Interval, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("generator: interval must be positive, got %s", d)
		}
		interval = d
	}

	message := cfg.Message
	if message == "" {
		message = "generated event"
	}

	return &Generator{
		interval: interval,
		message:  message,
		fields:   cfg.Fields,
		count:    cfg.Count,
	}, nil
}

// Run drives the generator until ctx is cancelled, shutdown begins, or (if
// configured) Count events have been emitted.
func (g *Generator) Run(ctx context.Context, sc source.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sc.Shutdown.Begin():
			return nil
		case <-ticker.C:
			if err := sc.Out.Send(ctx, g.next()); err != nil {
				return err
			}
			g.emitted++
			if g.count > 0 && g.emitted >= g.count {
				return nil
			}
		}
	}
}

func (g *Generator) next() event.Event {
	fields := make(map[string]any, len(g.fields)+1)
	for k, v := range g.fields {
		fields[k] = v
	}
	fields["seq"] = g.emitted

	return event.NewLog(event.LogPayload{
		Message:   g.message,
		Timestamp: time.Now(),
		Fields:    fields,
	})
}
