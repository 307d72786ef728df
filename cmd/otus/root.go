// Package otus implements the otus CLI using the cobra framework.
package otus

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes, matching sysexits.h's EX_CONFIG convention for the schema
// case.
const (
	ExitSuccess      = 0
	ExitConfigError  = 1
	ExitRuntimeError = 2
	ExitSchemaError  = 78
)

var (
	// Global flags
	configFile string
	dataDir    string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "otus",
	Short: "Otus - a lightweight observability data pipeline",
	Long: `Otus reads events from sources, transforms them in flight, and
delivers them to sinks through memory or disk-backed buffers.

Subcommands:
  validate  check a topology file for schema errors without running it
  run       start the pipeline in the foreground
  graph     print the topology's component graph
  version   print build version information`,
	Version: Version,
}

// Execute adds all child commands to the root command and runs it. It is
// called once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/otus/config.yaml",
		"topology config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "",
		"disk buffer root (accepted but not applied; the config file's data_dir or env DATA_DIR sets it)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (accepted but not applied; the config file's log.level or env LOG_LEVEL sets it)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(versionCmd)
}

// exitWithError prints msg (and err, if present) to stderr and exits with
// code.
func exitWithError(code int, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	exitProcess(code)
}

// exitProcess is a var so tests can swap in a non-terminating stub.
var exitProcess = os.Exit
