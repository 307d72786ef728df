package otus

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	_ "firestige.xyz/otus/internal/sink/console"
	_ "firestige.xyz/otus/internal/source/generator"
)

func writeValidateConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "otus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func withExitStub(t *testing.T) *int {
	t.Helper()
	var code int
	seen := false
	old := exitProcess
	exitProcess = func(c int) {
		if !seen {
			code = c
			seen = true
		}
		panic("exit") // stop execution like the real os.Exit would
	}
	t.Cleanup(func() { exitProcess = old })
	return &code
}

func runRootCatchingExit(t *testing.T, args []string) (stdout, stderr string, exitCode int) {
	t.Helper()
	code := withExitStub(t)

	var outBuf, errBuf bytes.Buffer
	rootCmd.SetOut(&outBuf)
	rootCmd.SetErr(&errBuf)
	rootCmd.SetArgs(args)

	func() {
		defer func() {
			if r := recover(); r != nil {
				if r != "exit" {
					panic(r)
				}
			}
		}()
		_ = rootCmd.Execute()
	}()

	return outBuf.String(), errBuf.String(), *code
}

func TestValidateAcceptsWellFormedTopology(t *testing.T) {
	path := writeValidateConfig(t, `
sources:
  in:
    type: generator
sinks:
  out:
    type: console
    inputs: [in]
`)

	stdout, _, _ := runRootCatchingExit(t, []string{"validate", "--config", path})
	require.Contains(t, stdout, "VALID")
}

func TestValidateRejectsUnknownComponentType(t *testing.T) {
	path := writeValidateConfig(t, `
sources:
  in:
    type: does-not-exist
sinks:
  out:
    type: console
    inputs: [in]
`)

	_, stderr, code := runRootCatchingExit(t, []string{"validate", "--config", path})
	require.Equal(t, ExitSchemaError, code)
	require.Contains(t, stderr, "INVALID")
}

func TestValidateRejectsMissingFile(t *testing.T) {
	_, _, code := runRootCatchingExit(t, []string{"validate", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Equal(t, ExitConfigError, code)
}

func TestValidateRejectsInvalidLogLevel(t *testing.T) {
	path := writeValidateConfig(t, `
log:
  level: deafening
sources:
  in:
    type: generator
sinks:
  out:
    type: console
    inputs: [in]
`)

	_, stderr, code := runRootCatchingExit(t, []string{"validate", "--config", path})
	require.Equal(t, ExitSchemaError, code)
	require.Contains(t, stderr, "INVALID")
}
