package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/research-assistant/internal/session"
	"github.com/matsen/research-assistant/internal/vectorindex"
)

func init() {
	rootCmd.AddCommand(collectionsCmd)
}

// CollectionsResponse is the response for the collections command.
type CollectionsResponse struct {
	Collections []vectorindex.Collection `json:"collections"`
	Total       int                      `json:"total"`
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List collections in the configured vector index",
	Args:  cobra.NoArgs,
	RunE:  runCollections,
}

func runCollections(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	cols, err := session.ListCollections(ctx, cfg)
	if err != nil {
		return err
	}

	if humanOutput {
		if len(cols) == 0 {
			outputHuman("No collections yet. Create one with 'ra fetch <name> -k <keyword>'.\n")
			return nil
		}
		for _, c := range cols {
			outputHuman("%-30s %6d abstracts\n", c.Name, c.Count)
		}
		return nil
	}
	return outputJSON(CollectionsResponse{Collections: cols, Total: len(cols)})
}
