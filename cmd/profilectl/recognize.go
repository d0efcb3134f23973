package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"profile-ml/service/internal/config"
	"profile-ml/service/internal/recognition"
)

// NewRecognizeCmd creates the recognize command.
func NewRecognizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recognize",
		Short: "Detect objects in a local photo and suggest taxonomy tags",
		Long: `Runs the recognition gateway on a local image file using the configured
detector chain (HTTP, MQTT, then the built-in fixture detector).
With --validate the photo is checked for size, resolution and metadata instead.`,
		Args: cobra.NoArgs,
		RunE: runRecognize,
	}
	cmd.Flags().StringP("image", "i", "", "Path to the image file")
	cmd.Flags().Bool("validate", false, "Validate the photo instead of recognizing objects")
	cmd.Flags().StringP("format", "f", formatJSON, "Output format: json or markdown")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func runRecognize(cmd *cobra.Command, _ []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("image")
	image, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	taxonomy, err := recognition.LoadTaxonomy(cfg.Recognition.TaxonomyPath)
	if err != nil {
		return fmt.Errorf("taxonomy: %w", err)
	}
	detector, closeDetector, err := recognition.NewBackend(backendOptions(cfg))
	if err != nil {
		return fmt.Errorf("configure detector: %w", err)
	}
	defer closeDetector()
	gateway := recognition.NewGateway(taxonomy, detector, gatewayConfig(cfg))

	out := cmd.OutOrStdout()
	if validate, _ := cmd.Flags().GetBool("validate"); validate {
		result, err := gateway.Validate(cmd.Context(), image)
		if err != nil {
			return err
		}
		if format == formatMarkdown {
			return writeValidationMarkdown(out, filepath.Base(path), result)
		}
		return writeJSON(out, result)
	}

	result, err := gateway.Recognize(cmd.Context(), image)
	if err != nil {
		return err
	}
	if format == formatMarkdown {
		return writeRecognitionMarkdown(out, filepath.Base(path), gateway.DetectorName(), result)
	}
	return writeJSON(out, result)
}

func backendOptions(cfg *config.Config) recognition.BackendOptions {
	return recognition.BackendOptions{
		HTTP: recognition.HTTPConfig{
			URL:      cfg.Detector.URL,
			APIKey:   cfg.Detector.APIKey,
			Timeout:  cfg.Detector.Timeout,
			CacheTTL: cfg.Detector.CacheTTL,
		},
		MQTT: recognition.MQTTConfig{
			Broker:      cfg.Detector.MQTTBroker,
			Username:    cfg.Detector.MQTTUsername,
			Password:    cfg.Detector.MQTTPassword,
			TopicPrefix: cfg.Detector.MQTTTopic,
		},
		DisableFixture: cfg.Detector.DisableFixture,
	}
}

func gatewayConfig(cfg *config.Config) recognition.Config {
	return recognition.Config{
		Threshold:       cfg.Recognition.Threshold,
		MaxImageBytes:   cfg.Recognition.MaxImageBytes,
		MinDimension:    cfg.Recognition.MinDimension,
		DetectorTimeout: cfg.Recognition.DetectorTimeout,
		BulkLimit:       cfg.Recognition.BulkLimit,
		BulkConcurrency: cfg.Recognition.BulkConcurrency,
	}
}
