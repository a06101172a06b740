package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/vulnlynx/pkg/models"
)

const banditBinary = "bandit"

// BanditAdapter drives bandit's Python SAST and normalizes its native JSON
// report. Bandit carries its own severity scale, which takes precedence over
// the generic SARIF level table.
type BanditAdapter struct {
	logger *logrus.Logger
}

func NewBanditAdapter(logger *logrus.Logger) *BanditAdapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &BanditAdapter{logger: logger}
}

func (b *BanditAdapter) Name() string {
	return "bandit"
}

func (b *BanditAdapter) Probe() error {
	return probeBinary(banditBinary)
}

func (b *BanditAdapter) Run(ctx context.Context, target string, config Config) (*RawOutput, error) {
	args := []string{"-f", "json", "-r", "--quiet"}
	if len(config.Rulesets) > 0 {
		args = append(args, "-t", strings.Join(config.Rulesets, ","))
	}
	if len(config.Exclusions) > 0 {
		args = append(args, "-x", strings.Join(config.Exclusions, ","))
	}
	args = append(args, config.ExtraArgs...)
	args = append(args, target)

	return runScanner(ctx, b.logger, banditBinary, args)
}

type banditReport struct {
	Results []banditResult `json:"results"`
	Errors  []banditError  `json:"errors"`
}

type banditResult struct {
	Filename        string    `json:"filename"`
	TestID          string    `json:"test_id"`
	TestName        string    `json:"test_name"`
	IssueSeverity   string    `json:"issue_severity"`
	IssueConfidence string    `json:"issue_confidence"`
	IssueText       string    `json:"issue_text"`
	IssueCWE        banditCWE `json:"issue_cwe"`
	LineNumber      int       `json:"line_number"`
	LineRange       []int     `json:"line_range"`
	Code            string    `json:"code"`
}

type banditCWE struct {
	ID   int    `json:"id"`
	Link string `json:"link"`
}

type banditError struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// Bandit's native severity scale.
var banditSeverity = map[string]models.Severity{
	"HIGH":   models.SeverityHigh,
	"MEDIUM": models.SeverityMedium,
	"LOW":    models.SeverityLow,
}

func (b *BanditAdapter) Normalize(raw *RawOutput) ([]models.Finding, error) {
	if raw == nil || len(raw.Stdout) == 0 {
		return nil, fmt.Errorf("%w: bandit produced no output", models.ErrOutputUnparsable)
	}

	var report banditReport
	if err := json.Unmarshal(raw.Stdout, &report); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrOutputUnparsable, err)
	}

	for _, e := range report.Errors {
		b.logger.Warnf("Bandit could not process %s: %s", e.Filename, e.Reason)
	}

	var findings []models.Finding
	for i, result := range report.Results {
		severity, ok := banditSeverity[strings.ToUpper(result.IssueSeverity)]
		if !ok {
			severity = models.SeverityInfo
		}

		var cwe string
		if result.IssueCWE.ID > 0 {
			cwe = fmt.Sprintf("CWE-%d", result.IssueCWE.ID)
		}

		lineStart := result.LineNumber
		lineEnd := lineStart
		if n := len(result.LineRange); n > 0 {
			lineStart = result.LineRange[0]
			lineEnd = result.LineRange[n-1]
		}

		findings = append(findings, models.Finding{
			ID:          syntheticID(b.Name(), cwe, result.TestID, i+1),
			Scanner:     b.Name(),
			Severity:    severity,
			Title:       result.TestName,
			Description: result.IssueText,
			Location: models.Location{
				File:        result.Filename,
				LineStart:   lineStart,
				LineEnd:     lineEnd,
				CodeSnippet: result.Code,
			},
			CWEID:        cwe,
			TriageStatus: models.TriageUntriaged,
		})
	}

	b.logger.Debugf("Bandit normalization produced %d findings", len(findings))
	return findings, nil
}
