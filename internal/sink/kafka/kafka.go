// Package kafka implements a durable Kafka sink wrapping segmentio/kafka-go,
// reusing the same brokers/topic/batch_size/batch_timeout/compression/
// max_attempts configuration shape and the same "serialize to JSON, write,
// count errors" core as the prior standalone Kafka reporter, rebuilt
// against the Source/Sink/batcher contracts instead of a bare Reporter
// interface.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/otus/internal/batcher"
	"firestige.xyz/otus/internal/event"
	"firestige.xyz/otus/internal/metrics"
	"firestige.xyz/otus/internal/sink"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
)

// Config configures a Kafka sink, decoded from topology YAML via
// mapstructure.
type Config struct {
	Brokers      []string `mapstructure:"brokers"`       // required
	Topic        string   `mapstructure:"topic"`         // required
	BatchSize    int      `mapstructure:"batch_size"`    // optional, default 100
	BatchTimeout string   `mapstructure:"batch_timeout"` // optional, default 100ms
	Compression  string   `mapstructure:"compression"`   // optional: none|gzip|snappy|lz4, default snappy
	MaxAttempts  int      `mapstructure:"max_attempts"`  // optional, default 3
}

// Kafka is a Sink that batches events through internal/batcher and writes
// each batch to a topic, synchronously, via kafka.Writer.
type Kafka struct {
	writer *kafkago.Writer
	topic  string

	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// New validates cfg, builds the underlying kafka.Writer, and returns a
// ready-to-run Kafka sink. It does not connect until the first write.
func New(cfg Config) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: brokers is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink: topic is required")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	batchTimeout := defaultBatchTimeout
	if cfg.BatchTimeout != "" {
		d, err := time.ParseDuration(cfg.BatchTimeout)
		if err != nil {
			return nil, fmt.Errorf("kafka sink: invalid batch_timeout: %w", err)
		}
		batchTimeout = d
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	compression := cfg.Compression
	if compression == "" {
		compression = defaultCompression
	}

	writerConfig := kafkago.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		MaxAttempts:  maxAttempts,
		Async:        false,
	}
	switch compression {
	case "none":
		writerConfig.CompressionCodec = nil
	case "gzip":
		writerConfig.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		writerConfig.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		writerConfig.CompressionCodec = compress.Lz4.Codec()
	default:
		return nil, fmt.Errorf("kafka sink: invalid compression type %q", compression)
	}

	return &Kafka{
		writer: kafkago.NewWriter(writerConfig),
		topic:  cfg.Topic,
	}, nil
}

// Run drains sc.In through a batcher.Batcher, writing each batch to Kafka
// and resolving each event's finalizer (Delivered on a confirmed write,
// Errored on a transient failure after MaxAttempts are exhausted by the
// underlying writer).
func (k *Kafka) Run(ctx context.Context, sc sink.Context) error {
	b := batcher.New(batcher.Config{
		SinkID:  "kafka:" + k.topic,
		Primary: k.deliverBatch(sc),
	})
	b.Start(ctx)
	defer b.Close()

	for {
		e, ok := sc.In.Next(ctx)
		if !ok {
			return nil
		}
		if err := b.Send(ctx, e); err != nil {
			return err
		}
	}
}

func (k *Kafka) deliverBatch(sc sink.Context) batcher.DeliverBatch {
	return func(ctx context.Context, batch []event.Event) error {
		msgs := make([]kafkago.Message, 0, len(batch))
		sendable := make([]event.Event, 0, len(batch))
		for _, e := range batch {
			value, err := encode(e)
			if err != nil {
				k.errorCount.Add(1)
				e.Metadata.Finalize(event.Rejected)
				metrics.SinkErroredTotal.WithLabelValues(k.topic, "encode").Inc()
				continue
			}
			msgs = append(msgs, kafkago.Message{Key: []byte(e.ID.String()), Value: value, Time: time.Now()})
			sendable = append(sendable, e)
		}
		if len(msgs) == 0 {
			return nil
		}

		if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
			k.errorCount.Add(1)
			slog.Warn("kafka sink: write failed", "topic", k.topic, "batch_size", len(msgs), "error", err)
			metrics.SinkErroredTotal.WithLabelValues(k.topic, "write").Add(float64(len(sendable)))
			for _, e := range sendable {
				e.Metadata.Finalize(event.Errored)
			}
			return err
		}

		k.reportedCount.Add(uint64(len(msgs)))
		metrics.SinkDeliveredTotal.WithLabelValues(k.topic).Add(float64(len(msgs)))
		for _, e := range sendable {
			e.Metadata.Finalize(event.Delivered)
		}
		if sc.Acker != nil {
			sc.Acker.Ack(uint64(len(sendable)))
		}
		return nil
	}
}

func encode(e event.Event) ([]byte, error) {
	out := map[string]any{
		"id":   e.ID.String(),
		"kind": e.Kind.String(),
	}
	switch e.Kind {
	case event.KindLog:
		if e.Log != nil {
			out["message"] = e.Log.Message
			out["timestamp"] = e.Log.Timestamp.UnixMilli()
			out["fields"] = e.Log.Fields
		}
	case event.KindMetric:
		if e.Metric != nil {
			out["name"] = e.Metric.Name
			out["value"] = e.Metric.Value
			out["tags"] = e.Metric.Tags
		}
	case event.KindTrace:
		if e.Trace != nil {
			out["trace_id"] = e.Trace.TraceID
			out["span_id"] = e.Trace.SpanID
			out["name"] = e.Trace.Name
		}
	}
	return json.Marshal(out)
}

// Close flushes and closes the underlying writer, logging its lifetime
// counters.
func (k *Kafka) Close() error {
	err := k.writer.Close()
	slog.Info("kafka sink stopped", "topic", k.topic, "total_reported", k.reportedCount.Load(), "total_errors", k.errorCount.Load())
	return err
}
