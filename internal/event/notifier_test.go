package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBatchNotifierAllDelivered(t *testing.T) {
	notifier, receiver := NewBatchNotifier()

	events := make([]Event, 5)
	for i := range events {
		events[i] = NewLog(LogPayload{Message: "hi"})
		events[i].Metadata.AddFinalizer(NewFinalizer(notifier))
	}

	for i := range events {
		events[i].Metadata.Finalize(Delivered)
	}

	require.Equal(t, Delivered, receiver.Wait())
}

func TestBatchNotifierWorstWins(t *testing.T) {
	notifier, receiver := NewBatchNotifier()

	e1 := NewLog(LogPayload{Message: "a"})
	e1.Metadata.AddFinalizer(NewFinalizer(notifier))
	e2 := NewLog(LogPayload{Message: "b"})
	e2.Metadata.AddFinalizer(NewFinalizer(notifier))
	e3 := NewLog(LogPayload{Message: "c"})
	e3.Metadata.AddFinalizer(NewFinalizer(notifier))

	e1.Metadata.Finalize(Delivered)
	e2.Metadata.Finalize(Rejected)
	e3.Metadata.Finalize(Errored)

	require.Equal(t, Rejected, receiver.Wait())
}

func TestMetadataSplitReportsToAllChildren(t *testing.T) {
	notifier, receiver := NewBatchNotifier()

	parent := NewMetadata()
	parent.AddFinalizer(NewFinalizer(notifier))

	children := parent.Split(3)
	require.Len(t, children, 3)

	for i := range children {
		children[i].Finalize(Delivered)
	}

	require.Equal(t, Delivered, receiver.Wait())
}

func TestMetadataMergeConcatenatesFinalizers(t *testing.T) {
	n1, r1 := NewBatchNotifier()
	n2, r2 := NewBatchNotifier()

	a := NewMetadata()
	a.AddFinalizer(NewFinalizer(n1))
	b := NewMetadata()
	b.AddFinalizer(NewFinalizer(n2))

	a.Merge(b)
	a.Finalize(Delivered)

	require.Equal(t, Delivered, r1.Wait())
	require.Equal(t, Delivered, r2.Wait())
}

func TestBatchNotifierResolvesUnderConcurrency(t *testing.T) {
	notifier, receiver := NewBatchNotifier()

	const n = 200
	events := make([]Event, n)
	for i := range events {
		events[i] = NewLog(LogPayload{Message: "x"})
		events[i].Metadata.AddFinalizer(NewFinalizer(notifier))
	}

	var wg sync.WaitGroup
	for i := range events {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			events[i].Metadata.Finalize(Delivered)
		}(i)
	}
	wg.Wait()

	select {
	case <-receiver.Done():
	case <-time.After(time.Second):
		t.Fatal("notifier did not resolve")
	}
	require.Equal(t, Delivered, receiver.Wait())
}

func TestEventCloneSharesFinalizerReferences(t *testing.T) {
	notifier, receiver := NewBatchNotifier()

	e := NewLog(LogPayload{Message: "original"})
	e.Metadata.AddFinalizer(NewFinalizer(notifier))

	clone := e.Clone()
	clone.Log.Message = "mutated"

	require.Equal(t, "original", e.Log.Message, "clone must deep-copy the payload")

	e.Metadata.Finalize(Delivered)
	_, resolved := receiver.TryStatus()
	require.False(t, resolved, "notifier must still be pending: clone holds a reference too")

	clone.Metadata.Finalize(Delivered)
	require.Equal(t, Delivered, receiver.Wait())
}
