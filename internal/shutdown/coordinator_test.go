package shutdown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownCleanCompletion(t *testing.T) {
	c := NewCoordinator()
	signal, _ := c.Register("src-1", false)

	go func() {
		token, ok := signal.Wait(context.Background())
		require.True(t, ok)
		token.Release()
	}()

	ok := c.Shutdown("src-1", time.Second)
	assert.True(t, ok)
}

// scenario 6: a source that never releases its token must be
// force-shut-down once the deadline elapses, and ShutdownAll must resolve
// promptly rather than hanging.
func TestScenarioShutdownDeadlineForcesSource(t *testing.T) {
	c := NewCoordinator()
	signal, force := c.Register("ignorer", false)
	_ = signal // deliberately never waited on / released

	start := time.Now()
	ok := c.ShutdownAll(100 * time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok, "ShutdownAll must report failure when a source had to be force-shut-down")
	assert.Less(t, elapsed, 500*time.Millisecond, "ShutdownAll must resolve promptly, not hang")

	select {
	case <-force:
	default:
		t.Fatal("force trigger must have fired for the ignoring source")
	}
}

func TestShutdownAllResolvesExternalBeforeInternal(t *testing.T) {
	c := NewCoordinator()
	extSignal, _ := c.Register("ext", false)
	intSignal, _ := c.Register("int", true)

	var mu sync.Mutex
	var order []string

	release := func(id string, s ShutdownSignal) {
		token, ok := s.Wait(context.Background())
		require.True(t, ok)
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
		token.Release()
	}

	go release("ext", extSignal)

	// give the external source a head start; the internal source is never
	// released until after ShutdownAll has had a chance to observe the
	// external group completing first.
	go func() {
		time.Sleep(30 * time.Millisecond)
		release("int", intSignal)
	}()

	ok := c.ShutdownAll(time.Second)
	assert.True(t, ok)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, "ext", order[0])
	assert.Equal(t, "int", order[1])
}

func TestShutdownPanicsOnUnknownSource(t *testing.T) {
	c := NewCoordinator()
	assert.Panics(t, func() {
		c.Shutdown("does-not-exist", time.Second)
	})
}
