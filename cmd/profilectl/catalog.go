package main

import (
	"github.com/spf13/cobra"

	"profile-ml/service/internal/scoring"
)

// NewCatalogCmd creates the catalog command.
func NewCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the archetype catalog",
		Args:  cobra.NoArgs,
		RunE:  runCatalog,
	}
	cmd.Flags().StringP("format", "f", formatJSON, "Output format: json or markdown")
	return cmd
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	catalog, err := scoring.LoadCatalog(cfg.Scoring.ArchetypesPath)
	if err != nil {
		return err
	}

	if format == formatMarkdown {
		return writeCatalogMarkdown(cmd.OutOrStdout(), catalog)
	}
	return writeJSON(cmd.OutOrStdout(), map[string]any{
		"version":    catalog.Version(),
		"default":    catalog.DefaultKey(),
		"archetypes": catalog.Archetypes(),
	})
}
