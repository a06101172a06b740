package reporting

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/vulnlynx/pkg/models"
	"github.com/bl4ck0w1/vulnlynx/pkg/utils"
)

// Formatter renders a scan result into one output format.
type Formatter interface {
	Format(result *models.ScanResult) ([]byte, error)
	FileExtension() string
}

// Generator writes scan results to report files in the configured formats.
type Generator struct {
	outputDir  string
	formatters map[string]Formatter
	logger     *logrus.Logger
}

func NewGenerator(outputDir string, logger *logrus.Logger) *Generator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Generator{
		outputDir: outputDir,
		logger:    logger,
		formatters: map[string]Formatter{
			"txt":  &textFormatter{},
			"json": &jsonFormatter{},
			"csv":  &csvFormatter{},
		},
	}
}

// Generate renders result in each requested format and returns the written
// file paths. Unknown formats are skipped with a warning.
func (g *Generator) Generate(result *models.ScanResult, formats []string) ([]string, error) {
	if err := utils.EnsureDir(g.outputDir); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	base := fmt.Sprintf("scan_%s_%s", sanitizeFilename(result.Target), result.Timestamp.Format("20060102_150405"))

	var paths []string
	for _, format := range formats {
		formatter, ok := g.formatters[strings.ToLower(format)]
		if !ok {
			g.logger.Warnf("Unknown report format %q, skipping", format)
			continue
		}
		data, err := formatter.Format(result)
		if err != nil {
			return paths, fmt.Errorf("format %s report: %w", format, err)
		}
		path := filepath.Join(g.outputDir, base+"."+formatter.FileExtension())
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("write %s report: %w", format, err)
		}
		g.logger.Infof("Report written to %s", path)
		paths = append(paths, path)
	}
	return paths, nil
}

var filenameSanitizer = regexp.MustCompile(`[^\w\-.]+`)

func sanitizeFilename(name string) string {
	clean := filenameSanitizer.ReplaceAllString(name, "_")
	return strings.Trim(clean, "_")
}

type jsonFormatter struct{}

func (f *jsonFormatter) FileExtension() string { return "json" }

func (f *jsonFormatter) Format(result *models.ScanResult) ([]byte, error) {
	return json.MarshalIndent(result, "", "  ")
}

type textFormatter struct{}

func (f *textFormatter) FileExtension() string { return "txt" }

func (f *textFormatter) Format(result *models.ScanResult) ([]byte, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Security Scan Report\n")
	fmt.Fprintf(&b, "====================\n\n")
	fmt.Fprintf(&b, "Target:    %s\n", result.Target)
	fmt.Fprintf(&b, "Scanned:   %s\n", result.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Scanners:  %s\n", strings.Join(result.ScannersUsed, ", "))
	fmt.Fprintf(&b, "Verdict:   ")
	if result.ShouldFail {
		fmt.Fprintf(&b, "FAIL\n\n")
	} else {
		fmt.Fprintf(&b, "PASS\n\n")
	}

	fmt.Fprintf(&b, "Findings by severity:\n")
	for _, sev := range models.Severities {
		fmt.Fprintf(&b, "  %-8s %d\n", sev, result.BySeverity[sev])
	}
	fmt.Fprintf(&b, "\n")

	for i := range result.Findings {
		finding := &result.Findings[i]
		fmt.Fprintf(&b, "[%s] %s  %s\n", strings.ToUpper(string(finding.Severity)), finding.ID, finding.Title)
		fmt.Fprintf(&b, "    %s:%d", finding.Location.File, finding.Location.LineStart)
		if finding.CWEID != "" {
			fmt.Fprintf(&b, "  (%s)", finding.CWEID)
		}
		fmt.Fprintf(&b, "\n")
		if len(finding.ContributingScanners) > 1 {
			fmt.Fprintf(&b, "    reported by: %s\n", strings.Join(finding.ContributingScanners, ", "))
		}
		if finding.TriageStatus != "" && finding.TriageStatus != models.TriageUntriaged {
			fmt.Fprintf(&b, "    triage: %s\n", finding.TriageStatus)
		}
	}

	if len(result.Metadata.Errors) > 0 {
		fmt.Fprintf(&b, "\nScanner errors:\n")
		for scanner, msg := range result.Metadata.Errors {
			fmt.Fprintf(&b, "  %s: %s\n", scanner, msg)
		}
	}

	return []byte(b.String()), nil
}

type csvFormatter struct{}

func (f *csvFormatter) FileExtension() string { return "csv" }

func (f *csvFormatter) Format(result *models.ScanResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"id", "severity", "title", "file", "line_start", "line_end", "cwe_id", "scanners", "triage_status", "fingerprint"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for i := range result.Findings {
		finding := &result.Findings[i]
		record := []string{
			finding.ID,
			string(finding.Severity),
			finding.Title,
			finding.Location.File,
			strconv.Itoa(finding.Location.LineStart),
			strconv.Itoa(finding.Location.LineEnd),
			finding.CWEID,
			strings.Join(finding.ContributingScanners, ";"),
			finding.TriageStatus,
			finding.Fingerprint,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}
