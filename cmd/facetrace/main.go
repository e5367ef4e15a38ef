package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/facetrace-ai/facetrace/pkg/server"
)

func main() {
	root := &cobra.Command{
		Use:     "facetrace",
		Short:   "Cached face landmark overlay rendering",
		Version: server.Version,
	}

	root.AddCommand(
		newServeCmd(),
		newRenderCmd(),
		newCacheCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
