package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"profile-ml/service/internal/scoring"
)

// NewGenerateCmd creates the generate command.
func NewGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Synthesize a character profile from a decisions file",
		Long: `Reads a JSON object of decisions and prints the resulting character profile.
The file may hold the decisions directly or wrapped as {"decisions": {...}},
matching the body accepted by POST /character/generate.`,
		Args: cobra.NoArgs,
		RunE: runGenerate,
	}
	cmd.Flags().StringP("decisions", "d", "", "Path to the decisions JSON file (- for stdin)")
	cmd.Flags().StringP("format", "f", formatJSON, "Output format: json or markdown")
	_ = cmd.MarkFlagRequired("decisions")
	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("decisions")
	var data []byte
	if path == "-" {
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(cmd.InOrStdin()); err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		data = buf.Bytes()
	} else {
		data, err = os.ReadFile(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("read decisions: %w", err)
		}
	}
	decisions, err := parseDecisions(data)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	synth, err := newSynthesizer(cfg.Scoring.ArchetypesPath, cfg.Scoring.WeightsPath)
	if err != nil {
		return err
	}
	profile, err := synth.Synthesize(decisions)
	if err != nil {
		return err
	}

	if format == formatMarkdown {
		return writeProfileMarkdown(cmd.OutOrStdout(), profile)
	}
	return writeJSON(cmd.OutOrStdout(), profile)
}

// parseDecisions accepts a bare decision object or one wrapped under "decisions".
func parseDecisions(data []byte) (scoring.DecisionSet, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("decisions must be a JSON object")
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var decisions scoring.DecisionSet
	if err := decoder.Decode(&decisions); err != nil {
		return nil, fmt.Errorf("decode decisions: %w", err)
	}
	if len(decisions) == 1 {
		if inner, ok := decisions["decisions"].(map[string]any); ok {
			decisions = inner
		}
	}
	return decisions, nil
}

func newSynthesizer(archetypesPath, weightsPath string) (*scoring.Synthesizer, error) {
	catalog, err := scoring.LoadCatalog(archetypesPath)
	if err != nil {
		return nil, fmt.Errorf("archetype catalog: %w", err)
	}
	weights, err := scoring.LoadWeights(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("decision weights: %w", err)
	}
	return scoring.NewSynthesizer(scoring.NewScorer(weights), catalog), nil
}
