package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bl4ck0w1/vulnlynx/internal/reporting"
	"github.com/bl4ck0w1/vulnlynx/pkg/models"
)

func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [target]",
		Short: "Run all configured scanners against a target and persist the findings",
		Long: `Run the configured static-analysis scanners concurrently against a target
directory, normalize and deduplicate their findings, compute the pass/fail
verdict, and persist the result set for triage.`,
		Args: cobra.ExactArgs(1),
		RunE: runScan,
	}

	cmd.Flags().StringSliceP("scanners", "s", nil, "Scanners to run (default: all available)")
	cmd.Flags().StringSlice("fail-on", nil, "Severities that fail the scan (critical, high, medium, low, info)")
	cmd.Flags().StringSliceP("formats", "f", nil, "Report formats to write (txt, json, csv)")
	cmd.Flags().Bool("no-report", false, "Skip report file generation")

	_ = viper.BindPFlag("scan.scanners", cmd.Flags().Lookup("scanners"))
	_ = viper.BindPFlag("scan.fail_on", cmd.Flags().Lookup("fail-on"))
	_ = viper.BindPFlag("scan.formats", cmd.Flags().Lookup("formats"))
	_ = viper.BindPFlag("scan.no_report", cmd.Flags().Lookup("no-report"))

	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	target := args[0]
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("invalid target %s: %w", target, err)
	}

	eng, err := buildEngine()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Received interrupt signal, cancelling scan...")
		cancel()
	}()

	result, err := eng.orchestrator.RunScan(ctx, target, eng.config.Scanners.Default, eng.config.Scanners.FailOn)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	printScanSummary(result)

	if !viper.GetBool("scan.no_report") {
		formats := viper.GetStringSlice("scan.formats")
		if len(formats) == 0 {
			formats = eng.config.Reporting.Formats
		}
		generator := reporting.NewGenerator(eng.config.Reporting.OutputDir, eng.logger)
		if _, err := generator.Generate(result, formats); err != nil {
			logrus.Warnf("Report generation failed: %v", err)
		}
	}

	if result.ShouldFail {
		return fmt.Errorf("scan found findings at or above the configured fail-on threshold")
	}
	return nil
}

func printScanSummary(result *models.ScanResult) {
	fmt.Printf("\nScan of %s complete.\n\n", result.Target)
	fmt.Printf("  %-10s %s\n", "Scanners:", strings.Join(result.ScannersUsed, ", "))
	fmt.Printf("  %-10s %d\n", "Findings:", len(result.Findings))
	for _, sev := range models.Severities {
		if result.BySeverity[sev] > 0 {
			fmt.Printf("    %-9s %d\n", sev, result.BySeverity[sev])
		}
	}
	if len(result.Metadata.Skipped) > 0 {
		fmt.Printf("  %-10s %v\n", "Skipped:", result.Metadata.Skipped)
	}
	for scanner, msg := range result.Metadata.Errors {
		fmt.Printf("  error [%s]: %s\n", scanner, msg)
	}
	if result.ShouldFail {
		fmt.Printf("\n  Verdict: FAIL\n\n")
	} else {
		fmt.Printf("\n  Verdict: PASS\n\n")
	}
}
