package otus

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the build version, overridable at link time via
// -ldflags "-X firestige.xyz/otus/cmd/otus.Version=...".
var Version = "0.1.0-dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "otus %s\n", Version)
	},
}
