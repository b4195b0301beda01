package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/guardloop/guardloop/internal/policy"
	"github.com/guardloop/guardloop/internal/scenario"
)

var (
	checkScenario string
	checkConfig   string
	checkFormat   string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkScenario, "scenario", "", "Glob pattern for scenario YAML files (required)")
	checkCmd.Flags().StringVar(&checkConfig, "config", "", "Path to sensitivity config YAML (optional)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	checkCmd.MarkFlagRequired("scenario")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run escalation assertions from scenario files",
	Long: "Loads scenario YAML files matching a glob pattern, drives each multi-turn\n" +
		"trajectory through the hook pipeline in a fresh session, and reports\n" +
		"expected vs actual escalation levels per turn.\n\n" +
		"Exit code 0 if all turns pass, 1 if any fail.\n" +
		"Use in CI to gate sensitivity config changes on known trajectories.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	matches, err := filepath.Glob(checkScenario)
	if err != nil {
		return fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no scenario files match pattern: %s", checkScenario)
	}

	cfg, err := policy.LoadConfig(checkConfig)
	if err != nil {
		return err
	}

	var results []*scenario.RunResult
	for _, path := range matches {
		r, err := scenario.LoadAndRun(path, cfg)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		results = append(results, r)
	}

	switch checkFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(scenario.FormatText(results))
	}

	for _, r := range results {
		if r.Failed > 0 {
			os.Exit(1)
		}
	}

	return nil
}
