// Command shelf is the maintenance CLI for the image gallery.
//
// Usage:
//
//	shelf serve                 Serve the gallery HTTP API
//	shelf tags list|add         Inspect or extend the tag catalog
//	shelf images list           List saved images
//	shelf images feature <id>   Mark an image Featured
//	shelf images archive <id>   Mark an image Archived
//	shelf stats                 Image counts by status
//	shelf events                JSONL event log viewer
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "shelf: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shelf",
		Short:         "Image gallery maintenance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default ~/.imageshelf/config.json)")
	root.PersistentFlags().StringP("output", "o", "table", "output format: table or json")

	root.AddCommand(
		newServeCmd(),
		newTagsCmd(),
		newImagesCmd(),
		newStatsCmd(),
		newEventsCmd(),
	)
	return root
}
