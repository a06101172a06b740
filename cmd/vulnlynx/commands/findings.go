package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bl4ck0w1/vulnlynx/pkg/models"
)

func NewFindingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "findings [finding-id]",
		Short: "List persisted findings, or show one in full",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFindings,
	}

	cmd.Flags().StringP("severity", "S", "", "Only show findings at this severity")
	cmd.Flags().Bool("json", false, "Emit findings as JSON")

	return cmd
}

func runFindings(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}

	result, err := eng.store.Load()
	if errors.Is(err, models.ErrNoScanYet) {
		fmt.Println("No scan has run yet. Run 'vulnlynx scan <target>' first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load findings: %w", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")

	if len(args) == 1 {
		finding := result.FindingByID(args[0])
		if finding == nil {
			return fmt.Errorf("finding %s: %w", args[0], models.ErrFindingNotFound)
		}
		if asJSON {
			return writeIndented(finding)
		}
		printFindingDetail(finding)
		return nil
	}

	findings := result.Findings
	if raw, _ := cmd.Flags().GetString("severity"); raw != "" {
		sev, err := models.ParseSeverity(raw)
		if err != nil {
			return err
		}
		filtered := findings[:0:0]
		for _, f := range findings {
			if f.Severity == sev {
				filtered = append(filtered, f)
			}
		}
		findings = filtered
	}

	if asJSON {
		return writeIndented(findings)
	}

	fmt.Printf("\n%d finding(s) in %s:\n\n", len(findings), result.Target)
	for _, f := range findings {
		fmt.Printf("  [%-8s] %-22s %s\n", f.Severity, f.ID, f.Title)
		fmt.Printf("             %s:%d  (%s)\n", f.Location.File, f.Location.LineStart,
			strings.Join(f.ContributingScanners, ", "))
	}
	fmt.Println()
	return nil
}

func printFindingDetail(f *models.Finding) {
	fmt.Println()
	fmt.Printf("  %-14s %s\n", "ID:", f.ID)
	fmt.Printf("  %-14s %s\n", "Severity:", f.Severity)
	fmt.Printf("  %-14s %s\n", "Title:", f.Title)
	fmt.Printf("  %-14s %s:%d-%d\n", "Location:", f.Location.File, f.Location.LineStart, f.Location.LineEnd)
	if f.CWEID != "" {
		fmt.Printf("  %-14s %s\n", "CWE:", f.CWEID)
	}
	if f.OWASPCategory != "" {
		fmt.Printf("  %-14s %s\n", "OWASP:", f.OWASPCategory)
	}
	if f.CVSSScore > 0 {
		fmt.Printf("  %-14s %.1f\n", "CVSS:", f.CVSSScore)
	}
	fmt.Printf("  %-14s %s\n", "Scanners:", strings.Join(f.ContributingScanners, ", "))
	fmt.Printf("  %-14s %s\n", "Triage:", f.TriageStatus)
	if f.TriageRationale != "" {
		fmt.Printf("  %-14s %s\n", "Rationale:", f.TriageRationale)
	}
	if f.Description != "" {
		fmt.Printf("\n  %s\n", f.Description)
	}
	if len(f.Dataflow) > 0 {
		fmt.Println("\n  Dataflow:")
		for _, step := range f.Dataflow {
			fmt.Printf("    %d. [%s] %s:%d  %s\n", step.Step, step.Type,
				step.Location.File, step.Location.LineStart, step.Description)
		}
	}
	fmt.Println()
}

func writeIndented(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
