package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/vulnlynx/pkg/models"
)

const semgrepBinary = "semgrep"

// SemgrepAdapter drives semgrep and normalizes its SARIF output. Semgrep
// exits 1 when findings exist, which is not an error.
type SemgrepAdapter struct {
	logger *logrus.Logger
}

func NewSemgrepAdapter(logger *logrus.Logger) *SemgrepAdapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &SemgrepAdapter{logger: logger}
}

func (s *SemgrepAdapter) Name() string {
	return "semgrep"
}

func (s *SemgrepAdapter) Probe() error {
	return probeBinary(semgrepBinary)
}

func (s *SemgrepAdapter) Run(ctx context.Context, target string, config Config) (*RawOutput, error) {
	args := []string{"scan", "--sarif", "--quiet", "--metrics", "off"}
	if len(config.Rulesets) == 0 {
		args = append(args, "--config", "auto")
	}
	for _, ruleset := range config.Rulesets {
		args = append(args, "--config", ruleset)
	}
	for _, pattern := range config.Exclusions {
		args = append(args, "--exclude", pattern)
	}
	args = append(args, config.ExtraArgs...)
	args = append(args, target)

	return runScanner(ctx, s.logger, semgrepBinary, args)
}

func (s *SemgrepAdapter) Normalize(raw *RawOutput) ([]models.Finding, error) {
	if raw == nil || len(raw.Stdout) == 0 {
		return nil, fmt.Errorf("%w: semgrep produced no output", models.ErrOutputUnparsable)
	}

	var report sarifReport
	if err := json.Unmarshal(raw.Stdout, &report); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrOutputUnparsable, err)
	}

	var findings []models.Finding
	seq := 0
	for ri := range report.Runs {
		run := &report.Runs[ri]
		for _, result := range run.Results {
			if len(result.Locations) == 0 {
				continue
			}
			seq++

			severity := severityFromLevel(result.Level)
			var cwe, owasp string
			var cvss float64
			description := result.Message.Text

			if rule := run.ruleFor(result); rule != nil {
				cwe = extractCWE(append([]string{result.RuleID}, rule.Properties.Tags...)...)
				owasp = extractOWASP(rule.Properties.Tags)
				cvss = cvssFromSecuritySeverity(rule.Properties.SecuritySeverity)
				if description == "" {
					description = rule.FullDescription.Text
				}
				// Semgrep encodes its own severity in security-severity; it
				// takes precedence over the generic level table.
				if cvss >= 9.0 {
					severity = models.SeverityCritical
				} else if cvss >= 7.0 {
					severity = models.MaxSeverity(severity, models.SeverityHigh)
				}
			} else {
				cwe = extractCWE(result.RuleID)
			}

			title := result.Message.Text
			if title == "" {
				title = result.RuleID
			}
			if idx := strings.IndexByte(title, '\n'); idx > 0 {
				title = title[:idx]
			}

			findings = append(findings, models.Finding{
				ID:            syntheticID(s.Name(), cwe, result.RuleID, seq),
				Scanner:       s.Name(),
				Severity:      severity,
				Title:         title,
				Description:   description,
				Location:      locationFromSARIF(result.Locations[0]),
				CWEID:         cwe,
				OWASPCategory: owasp,
				CVSSScore:     cvss,
				Dataflow:      dataflowFromSARIF(result.CodeFlows),
				TriageStatus:  models.TriageUntriaged,
			})
		}
	}

	s.logger.Debugf("Semgrep normalization produced %d findings", len(findings))
	return findings, nil
}
