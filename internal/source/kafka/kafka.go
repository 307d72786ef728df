// Package kafka implements a durable Kafka source wrapping
// segmentio/kafka-go's consumer-group reader. It has no packet-capture
// analog (a capturer always reads from a live NIC, never from a durable
// broker offset), so the read/batch/wait-for-ack/commit loop is built
// fresh in the same Init/Run lifecycle idiom, reusing the same
// mapstructure configuration shape as internal/sink/kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"firestige.xyz/otus/internal/event"
	"firestige.xyz/otus/internal/source"
)

const defaultCommitBatch = 100

// Config configures a Kafka source.
type Config struct {
	Brokers     []string `mapstructure:"brokers"`      // required
	Topic       string   `mapstructure:"topic"`        // required
	GroupID     string   `mapstructure:"group_id"`      // required
	CommitBatch int      `mapstructure:"commit_batch"` // optional, default 100
}

// wireMessage is the JSON shape written by internal/sink/kafka, decoded
// back into a log event here. Metric/trace payloads round-trip through the
// same envelope but are out of scope for this source (it only ever reads
// back what a pipeline of this same build wrote).
type wireMessage struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Timestamp int64          `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// Kafka is a Source reading from a consumer group, advancing the group's
// committed offset only once a read batch's delivery notifier resolves
// Delivered — so a crash between read and downstream-ack redelivers instead
// of silently dropping.
type Kafka struct {
	reader      *kafkago.Reader
	commitBatch int
}

// New validates cfg and builds the underlying kafka.Reader.
func New(cfg Config) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka source: brokers is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka source: topic is required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka source: group_id is required")
	}
	commitBatch := cfg.CommitBatch
	if commitBatch <= 0 {
		commitBatch = defaultCommitBatch
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})

	return &Kafka{reader: reader, commitBatch: commitBatch}, nil
}

// Run reads messages in batches of up to commitBatch, forwards each as an
// event carrying a shared finalizer, waits for the batch to resolve, and
// commits the underlying offsets only once every event in the batch
// reports Delivered.
func (k *Kafka) Run(ctx context.Context, sc source.Context) error {
	defer k.reader.Close()

	for {
		batch, msgs, notifier, err := k.readBatch(ctx, sc)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		select {
		case <-notifier.Done():
		case <-ctx.Done():
			return nil
		case <-sc.Shutdown.Begin():
			return nil
		}

		status := notifier.Wait()
		if status != event.Delivered {
			slog.Warn("kafka source: batch did not deliver cleanly, offsets not committed", "topic", k.reader.Config().Topic, "status", status.String())
			continue
		}
		if err := k.reader.CommitMessages(ctx, msgs...); err != nil {
			slog.Warn("kafka source: commit failed", "error", err)
		}
	}
}

func (k *Kafka) readBatch(ctx context.Context, sc source.Context) ([]event.Event, []kafkago.Message, *event.NotifierReceiver, error) {
	notifier, receiver := event.NewBatchNotifier()
	batch := make([]event.Event, 0, k.commitBatch)
	msgs := make([]kafkago.Message, 0, k.commitBatch)

	for len(batch) < k.commitBatch {
		select {
		case <-ctx.Done():
			return batch, msgs, receiver, nil
		case <-sc.Shutdown.Begin():
			return batch, msgs, receiver, nil
		default:
		}

		readCtx, cancel := context.WithTimeout(ctx, time.Second)
		m, err := k.reader.FetchMessage(readCtx)
		cancel()
		if err != nil {
			if err == context.DeadlineExceeded {
				if len(batch) > 0 {
					return batch, msgs, receiver, nil
				}
				continue
			}
			return nil, nil, nil, err
		}

		e, decodeErr := decode(m)
		if decodeErr != nil {
			slog.Warn("kafka source: dropping undecodable message", "error", decodeErr)
			continue
		}
		e.Metadata.AddFinalizer(event.NewFinalizer(notifier))

		if err := sc.Out.Send(ctx, e); err != nil {
			return nil, nil, nil, err
		}
		batch = append(batch, e)
		msgs = append(msgs, m)
	}
	return batch, msgs, receiver, nil
}

func decode(m kafkago.Message) (event.Event, error) {
	var wm wireMessage
	if err := json.Unmarshal(m.Value, &wm); err != nil {
		return event.Event{}, err
	}
	return event.NewLog(event.LogPayload{
		Message:   wm.Message,
		Timestamp: time.UnixMilli(wm.Timestamp),
		Fields:    wm.Fields,
	}), nil
}
