package kafka_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/sink/kafka"
)

func TestNewRejectsMissingBrokers(t *testing.T) {
	_, err := kafka.New(kafka.Config{Topic: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brokers")
}

func TestNewRejectsMissingTopic(t *testing.T) {
	_, err := kafka.New(kafka.Config{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic")
}

func TestNewRejectsInvalidBatchTimeout(t *testing.T) {
	_, err := kafka.New(kafka.Config{
		Brokers:      []string{"localhost:9092"},
		Topic:        "t",
		BatchTimeout: "not-a-duration",
	})
	require.Error(t, err)
}

func TestNewRejectsInvalidCompression(t *testing.T) {
	_, err := kafka.New(kafka.Config{
		Brokers:     []string{"localhost:9092"},
		Topic:       "t",
		Compression: "bogus",
	})
	require.Error(t, err)
}

func TestNewAppliesDefaultsAndSucceeds(t *testing.T) {
	k, err := kafka.New(kafka.Config{
		Brokers: []string{"localhost:9092"},
		Topic:   "events",
	})
	require.NoError(t, err)
	require.NotNil(t, k)
	require.NoError(t, k.Close())
}
