package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bl4ck0w1/vulnlynx/pkg/models"
)

func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the security posture from the most recent scan",
		RunE:  runStatus,
	}

	cmd.Flags().Bool("json", false, "Emit the status summary as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}

	summary, err := eng.store.Status()
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	printStatusSummary(summary)
	return nil
}

func printStatusSummary(s models.StatusSummary) {
	fmt.Println()
	if s.Target == "" {
		fmt.Println("  No scan has run yet. Run 'vulnlynx scan <target>' first.")
		fmt.Println()
		return
	}
	fmt.Printf("  %-16s %s\n", "Target:", s.Target)
	fmt.Printf("  %-16s %s\n", "Last scan:", s.LastScan.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("  %-16s %s\n", "Scanners:", strings.Join(s.ScannersUsed, ", "))
	fmt.Printf("  %-16s %d\n", "Findings:", s.TotalFindings)
	for _, sev := range models.Severities {
		if s.BySeverity[sev] > 0 {
			fmt.Printf("    %-14s %d\n", sev, s.BySeverity[sev])
		}
	}
	fmt.Printf("  %-16s %s\n", "Posture:", s.SecurityPosture)
	fmt.Printf("  %-16s %s\n", "Triage:", s.TriageStatus)
	if s.TruePositives > 0 || s.FalsePositives > 0 {
		fmt.Printf("  %-16s %d confirmed, %d dismissed\n", "Triage calls:", s.TruePositives, s.FalsePositives)
	}
	fmt.Println()
}
