package buffer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	size int
}

func (t testItem) ByteSize() int { return t.size }

func TestMemoryStageSendReceiveFIFO(t *testing.T) {
	stage := NewMemoryStage[testItem](4)
	sender := stage.Sender()
	receiver := stage.Receiver()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, sender.Send(ctx, testItem{size: i}))
	}

	for i := 1; i <= 3; i++ {
		item, ok := receiver.Next(ctx)
		require.True(t, ok)
		assert.Equal(t, i, item.size)
	}
}

func TestMemoryStageClosesOnlyAfterLastProducer(t *testing.T) {
	stage := NewMemoryStage[testItem](4)
	a := stage.Sender()
	b := a.Clone()
	receiver := stage.Receiver()

	require.NoError(t, a.Close())
	assert.False(t, receiver.Closed(), "must stay open while a clone is still live")

	require.NoError(t, b.Close())
	assert.True(t, receiver.Closed())

	_, ok := receiver.Next(context.Background())
	assert.False(t, ok)
}

func TestMemoryStageTrySendFailsWhenFull(t *testing.T) {
	stage := NewMemoryStage[testItem](1)
	sender := stage.Sender()

	assert.True(t, sender.TrySend(testItem{size: 1}))
	assert.False(t, sender.TrySend(testItem{size: 1}))
}

func TestMemoryReceiverNextBlocksUntilSend(t *testing.T) {
	stage := NewMemoryStage[testItem](1)
	sender := stage.Sender()
	receiver := stage.Receiver()

	done := make(chan testItem, 1)
	go func() {
		item, ok := receiver.Next(context.Background())
		if ok {
			done <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sender.Send(context.Background(), testItem{size: 7}))

	select {
	case item := <-done:
		assert.Equal(t, 7, item.size)
	case <-time.After(time.Second):
		t.Fatal("receiver did not unblock after send")
	}
}

func TestMemoryReceiverNextRespectsContextCancellation(t *testing.T) {
	stage := NewMemoryStage[testItem](1)
	receiver := stage.Receiver()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, ok := receiver.Next(ctx)
	assert.False(t, ok)
}
