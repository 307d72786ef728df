package otus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCommandPrintsVersion(t *testing.T) {
	stdout, _, _ := runRootCatchingExit(t, []string{"version"})
	require.Contains(t, stdout, Version)
}
