package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guardloop/guardloop/internal/profile"
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Safeguard profile operations",
	Long:  "Profiles control which hook stages run and contribute extra detection patterns.",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range profile.List() {
			p, err := profile.Load(name)
			if err != nil {
				return err
			}
			marker := " "
			if name == profile.DefaultName {
				marker = "*"
			}
			fmt.Printf("%s %-14s stages=[%s]  %s\n", marker, name, strings.Join(p.Stages, ","), p.Description)
		}
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one profile in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := profile.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("name:        %s\n", p.Name)
		fmt.Printf("description: %s\n", p.Description)
		fmt.Printf("stages:      %s\n", strings.Join(p.Stages, ", "))
		if p.Sensitivity != nil {
			fmt.Printf("sensitivity: %.2f\n", *p.Sensitivity)
		}
		printPatterns := func(label string, pats []string) {
			if len(pats) == 0 {
				return
			}
			fmt.Printf("%s:\n", label)
			for _, pat := range pats {
				fmt.Printf("  - %s\n", pat)
			}
		}
		printPatterns("extra malicious patterns", p.Patterns.Malicious)
		printPatterns("extra injection patterns", p.Patterns.Injection)
		printPatterns("extra violation markers", p.Patterns.Violation)
		printPatterns("extra anomaly indicators", p.Patterns.Anomaly)
		return nil
	},
}
