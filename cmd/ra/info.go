package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info <collection>",
	Short: "Show statistics for a collection",
	Long: `Display the number of abstracts, cache entries, embedding dimensions
and model of a collection.

Example:
  ra info "JWST discoveries"`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, cfg, args[0], nil)
	if err != nil {
		return err
	}
	defer s.Close()

	info, err := s.Info(ctx)
	if err != nil {
		return err
	}

	if humanOutput {
		outputHuman("Collection: %s (%s)\n\n", info.Name, info.Namespace)
		outputHuman("Abstracts:     %d\n", info.Documents)
		outputHuman("Cache entries: %d\n", info.CacheEntries)
		outputHuman("Dimensions:    %d\n", info.Dimensions)
		outputHuman("Model:         %s\n", info.Model)
		if info.IndexPath != "" {
			outputHuman("Index:         %s\n", info.IndexPath)
		}
		return nil
	}
	return outputJSON(info)
}
