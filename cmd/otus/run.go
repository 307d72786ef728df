package otus

import (
	"errors"

	"github.com/spf13/cobra"

	"firestige.xyz/otus/internal/config"
	"firestige.xyz/otus/internal/daemonctl"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline in the foreground",
	Long: `Run loads the topology config, starts every source, transform,
and sink, and blocks until a shutdown signal arrives (SIGTERM/SIGINT
graceful, SIGQUIT forced) or SIGHUP triggers a reload.`,
	Run: func(cmd *cobra.Command, args []string) {
		runRun(cmd)
	},
}

func runRun(cmd *cobra.Command) {
	d, err := daemonctl.New(configFile)
	if err != nil {
		if errors.Is(err, config.ErrSchema) {
			exitWithError(ExitSchemaError, "invalid config", err)
			return
		}
		exitWithError(ExitConfigError, "failed to load config", err)
		return
	}

	if err := d.Run(cmd.Context()); err != nil {
		exitWithError(ExitRuntimeError, "pipeline run failed", err)
		return
	}
}
