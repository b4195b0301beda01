package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/guardloop/guardloop/internal/policy"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap guardloop configuration",
	Long: "Creates ~/.guardloop/ with a commented default sensitivity config and a\n" +
		"profiles directory for custom safeguard profiles.",
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}
	configDir := filepath.Join(home, ".guardloop")

	profilesDir := filepath.Join(configDir, "profiles")
	if err := os.MkdirAll(profilesDir, 0o755); err != nil {
		return fmt.Errorf("create profiles directory: %w", err)
	}

	var created []string
	configPath := filepath.Join(configDir, "config.yaml")
	if wrote, err := writeIfMissing(configPath, policy.DefaultConfigYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, configPath)
	}

	fmt.Println("guardloop init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, path := range created {
			fmt.Printf("  %s\n", path)
		}
	} else {
		fmt.Println("All files already exist (use --force to overwrite).")
	}
	fmt.Println()
	fmt.Println("Start the engine:")
	fmt.Println("  guardloop serve --audit-log ~/.guardloop/decisions.jsonl")
	fmt.Println()
	fmt.Println("Check shipped trajectories:")
	fmt.Println("  guardloop check --scenario 'scenarios/*.yaml'")

	return nil
}

// writeIfMissing writes content to path unless it exists and --force
// is not set. Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
