package otus

import (
	"testing"

	"github.com/stretchr/testify/require"

	_ "firestige.xyz/otus/internal/sink/console"
	_ "firestige.xyz/otus/internal/source/generator"
	_ "firestige.xyz/otus/internal/transform/remap"
)

func TestGraphRendersDOT(t *testing.T) {
	path := writeValidateConfig(t, `
sources:
  in:
    type: generator
transforms:
  up:
    type: remap
    inputs: [in]
sinks:
  out:
    type: console
    inputs: [up]
`)

	stdout, _, _ := runRootCatchingExit(t, []string{"graph", "--config", path})
	require.Contains(t, stdout, "digraph otus")
	require.Contains(t, stdout, `"in" -> "up"`)
	require.Contains(t, stdout, `"up" -> "out"`)
}

func TestGraphRejectsInvalidTopology(t *testing.T) {
	path := writeValidateConfig(t, `
sources:
  in:
    type: generator
sinks:
  out:
    type: console
    inputs: [does-not-exist]
`)

	_, _, code := runRootCatchingExit(t, []string{"graph", "--config", path})
	require.Equal(t, ExitSchemaError, code)
}
