// Command otus is the entry point for the Otus observability pipeline.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/otus/cmd/otus"

	_ "firestige.xyz/otus/internal/sink/console"
	_ "firestige.xyz/otus/internal/sink/kafka"
	_ "firestige.xyz/otus/internal/source/generator"
	_ "firestige.xyz/otus/internal/source/kafka"
	_ "firestige.xyz/otus/internal/transform/remap"
)

func main() {
	if err := otus.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
