package otus

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/otus/internal/config"
	"firestige.xyz/otus/internal/topology"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a topology config file without running it",
	Long: `Validate loads the topology config at --config, checks every
ambient setting (log level/format) and the component graph (no cycles, no
unknown component types, every input resolves, at most one consumer per
output) without constructing or starting any component.`,
	Run: func(cmd *cobra.Command, args []string) {
		runValidate(cmd)
	},
}

func runValidate(cmd *cobra.Command) {
	cfg, err := config.Load(configFile)
	if err != nil {
		if errors.Is(err, config.ErrSchema) {
			fmt.Fprintf(cmd.ErrOrStderr(), "INVALID: %v\n", err)
			exitProcess(ExitSchemaError)
			return
		}
		exitWithError(ExitConfigError, fmt.Sprintf("failed to read config file %s", configFile), err)
		return
	}

	if err := topology.Validate(cfg.Topology); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "INVALID: %v\n", err)
		exitProcess(ExitSchemaError)
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "VALID: %d source(s), %d transform(s), %d sink(s)\n",
		len(cfg.Topology.Sources), len(cfg.Topology.Transforms), len(cfg.Topology.Sinks))
}
