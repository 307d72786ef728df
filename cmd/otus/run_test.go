package otus

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "firestige.xyz/otus/internal/sink/console"
	_ "firestige.xyz/otus/internal/source/generator"
)

func TestRunRejectsMissingFile(t *testing.T) {
	_, _, code := runRootCatchingExit(t, []string{"run", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Equal(t, ExitConfigError, code)
}

func TestRunStartsAndStopsOnContextCancel(t *testing.T) {
	path := writeValidateConfig(t, `
shutdown_timeout: 2s
metrics:
  enabled: false
data_dir: `+t.TempDir()+`
sources:
  in:
    type: generator
    count: 0
    interval: 1ms
sinks:
  out:
    type: console
    inputs: [in]
`)

	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetArgs([]string{"run", "--config", path})

	errCh := make(chan error, 1)
	go func() {
		errCh <- rootCmd.ExecuteContext(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after context cancellation")
	}
}
