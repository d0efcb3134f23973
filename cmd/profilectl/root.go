package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"profile-ml/service/internal/config"
	"profile-ml/service/internal/logging"
)

var version = "1.0.0"

// NewRootCmd creates the root command for profilectl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profilectl",
		Short: "Generate character profiles and tag photos without the HTTP service",
		Long: `profilectl runs the profile-ml scoring and recognition pipelines locally.
It reads the same YAML configuration as the service, so catalogs, weight tables,
taxonomies and detector backends match what the API would use.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			level := "warn"
			if verbose {
				level = "debug"
			}
			_, err := logging.Configure(logrus.StandardLogger(), logging.Options{Level: level}, cmd.ErrOrStderr())
			return err
		},
	}

	cmd.PersistentFlags().String("config", "", "Path to YAML config (defaults to $XDG_CONFIG_HOME/profile-ml/config.yaml)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewGenerateCmd())
	cmd.AddCommand(NewCatalogCmd())
	cmd.AddCommand(NewRecognizeCmd())
	cmd.AddCommand(NewStatsCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case formatJSON, formatMarkdown:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want json or markdown)", format)
	}
}
