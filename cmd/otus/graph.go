package otus

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"firestige.xyz/otus/internal/config"
	"firestige.xyz/otus/internal/topology"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the topology's component graph in Graphviz DOT format",
	Long: `Graph loads the topology config and renders its sources,
transforms, and sinks as a directed graph (DOT format), without starting
anything. Pipe to "dot -Tpng" to render an image.`,
	Run: func(cmd *cobra.Command, args []string) {
		runGraph(cmd)
	},
}

func runGraph(cmd *cobra.Command) {
	cfg, err := config.Load(configFile)
	if err != nil {
		exitWithError(ExitConfigError, fmt.Sprintf("failed to read config file %s", configFile), err)
		return
	}

	if err := topology.Validate(cfg.Topology); err != nil {
		exitWithError(ExitSchemaError, "invalid topology", err)
		return
	}

	fmt.Fprint(cmd.OutOrStdout(), renderDOT(cfg.Topology))
}

func renderDOT(cfg topology.Config) string {
	out := "digraph otus {\n  rankdir=LR;\n"

	for _, id := range sortedKeys(cfg.Sources) {
		out += fmt.Sprintf("  %q [shape=box, style=filled, fillcolor=lightblue];\n", id)
	}
	for _, id := range sortedKeys(cfg.Transforms) {
		out += fmt.Sprintf("  %q [shape=ellipse];\n", id)
	}
	for _, id := range sortedKeys(cfg.Sinks) {
		out += fmt.Sprintf("  %q [shape=box, style=filled, fillcolor=lightgreen];\n", id)
	}

	var edges []string
	for id, t := range cfg.Transforms {
		for _, in := range t.Inputs {
			edges = append(edges, fmt.Sprintf("  %q -> %q;\n", in, id))
		}
	}
	for id, s := range cfg.Sinks {
		for _, in := range s.Inputs {
			edges = append(edges, fmt.Sprintf("  %q -> %q;\n", in, id))
		}
	}
	sort.Strings(edges)
	for _, e := range edges {
		out += e
	}

	out += "}\n"
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
