package kafka_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/source/kafka"
)

func TestNewRejectsMissingBrokers(t *testing.T) {
	_, err := kafka.New(kafka.Config{Topic: "t", GroupID: "g"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brokers")
}

func TestNewRejectsMissingTopic(t *testing.T) {
	_, err := kafka.New(kafka.Config{Brokers: []string{"localhost:9092"}, GroupID: "g"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic")
}

func TestNewRejectsMissingGroupID(t *testing.T) {
	_, err := kafka.New(kafka.Config{Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group_id")
}

func TestNewAcceptsRequiredFields(t *testing.T) {
	k, err := kafka.New(kafka.Config{
		Brokers: []string{"localhost:9092"},
		Topic:   "events",
		GroupID: "otus-consumers",
	})
	require.NoError(t, err)
	require.NotNil(t, k)
}
