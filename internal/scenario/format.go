package scenario

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders a list of run results as human-readable text.
func FormatText(results []*RunResult) string {
	var b strings.Builder

	totalFiles := len(results)
	fmt.Fprintf(&b, "Checking %d scenario file", totalFiles)
	if totalFiles != 1 {
		b.WriteString("s")
	}
	b.WriteString("...\n\n")

	totalTurns := 0
	totalPassed := 0
	failedScenarios := 0

	for _, r := range results {
		totalTurns += r.Total
		totalPassed += r.Passed

		if r.Failed == 0 {
			fmt.Fprintf(&b, "  PASS  %s (%d/%d)\n", r.Name, r.Passed, r.Total)
		} else {
			failedScenarios++
			fmt.Fprintf(&b, "  FAIL  %s (%d/%d)\n", r.Name, r.Passed, r.Total)
			for _, t := range r.Turns {
				if !t.Passed {
					reason := t.Reason
					if len(reason) > 48 {
						reason = reason[:45] + "..."
					}
					fmt.Fprintf(&b, "    FAIL  turn %d: expected %s, got %s (drift %.2f, %s)\n",
						t.Index, t.Expected, t.Actual, t.Drift, reason)
				}
			}
		}
	}

	fmt.Fprintf(&b, "\n%d of %d turns passed.", totalPassed, totalTurns)
	if failedScenarios > 0 {
		fmt.Fprintf(&b, " %d of %d scenarios failed.", failedScenarios, totalFiles)
	}
	b.WriteString("\n")

	return b.String()
}

// FormatJSON renders run results as JSON.
func FormatJSON(results []*RunResult) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(data), nil
}
