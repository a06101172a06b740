package adapters

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bl4ck0w1/vulnlynx/pkg/models"
)

// Minimal SARIF model: only the fields the normalization path reads.

type sarifReport struct {
	Runs []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name  string      `json:"name"`
	Rules []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string         `json:"id"`
	ShortDescription sarifMessage   `json:"shortDescription"`
	FullDescription  sarifMessage   `json:"fullDescription"`
	Properties       sarifRuleProps `json:"properties"`
}

type sarifRuleProps struct {
	Tags             []string `json:"tags"`
	SecuritySeverity string   `json:"security-severity"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	RuleIndex *int            `json:"ruleIndex,omitempty"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations"`
	CodeFlows []sarifCodeFlow `json:"codeFlows"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int          `json:"startLine"`
	EndLine   int          `json:"endLine"`
	Snippet   sarifMessage `json:"snippet"`
}

type sarifCodeFlow struct {
	ThreadFlows []sarifThreadFlow `json:"threadFlows"`
}

type sarifThreadFlow struct {
	Locations []sarifThreadFlowLocation `json:"locations"`
}

type sarifThreadFlowLocation struct {
	Location sarifLocation `json:"location"`
	Message  sarifMessage  `json:"message"`
}

// levelSeverity is the generic SARIF level mapping. Adapters with
// scanner-specific severity information override it during normalization.
var levelSeverity = map[string]models.Severity{
	"error":   models.SeverityHigh,
	"warning": models.SeverityMedium,
	"note":    models.SeverityLow,
	"none":    models.SeverityInfo,
}

func severityFromLevel(level string) models.Severity {
	if sev, ok := levelSeverity[strings.ToLower(level)]; ok {
		return sev
	}
	return models.SeverityInfo
}

var cweRE = regexp.MustCompile(`(?i)cwe[-: ]?(\d+)`)

// extractCWE pulls the first CWE identifier out of a rule id, tag list, or
// free text, normalized to "CWE-<n>".
func extractCWE(candidates ...string) string {
	for _, c := range candidates {
		if m := cweRE.FindStringSubmatch(c); m != nil {
			return "CWE-" + m[1]
		}
	}
	return ""
}

var owaspRE = regexp.MustCompile(`(?i)owasp[-: ]?(a\d{1,2}(?::\d{4})?)`)

func extractOWASP(tags []string) string {
	for _, tag := range tags {
		if m := owaspRE.FindStringSubmatch(tag); m != nil {
			return "A" + strings.TrimPrefix(strings.ToUpper(m[1]), "A")
		}
	}
	return ""
}

func locationFromSARIF(loc sarifLocation) models.Location {
	region := loc.PhysicalLocation.Region
	end := region.EndLine
	if end < region.StartLine {
		end = region.StartLine
	}
	return models.Location{
		File:        loc.PhysicalLocation.ArtifactLocation.URI,
		LineStart:   region.StartLine,
		LineEnd:     end,
		CodeSnippet: region.Snippet.Text,
	}
}

// dataflowFromSARIF converts the first code flow's first thread flow into
// ordered dataflow steps: first location is the source, last the sink.
func dataflowFromSARIF(flows []sarifCodeFlow) []models.DataflowStep {
	if len(flows) == 0 || len(flows[0].ThreadFlows) == 0 {
		return nil
	}
	locs := flows[0].ThreadFlows[0].Locations
	if len(locs) == 0 {
		return nil
	}
	steps := make([]models.DataflowStep, 0, len(locs))
	for i, tfl := range locs {
		stepType := models.DataflowPropagation
		switch i {
		case 0:
			stepType = models.DataflowSource
		case len(locs) - 1:
			stepType = models.DataflowSink
		}
		steps = append(steps, models.DataflowStep{
			Step:        i + 1,
			Type:        stepType,
			Location:    locationFromSARIF(tfl.Location),
			Description: tfl.Message.Text,
		})
	}
	return steps
}

// ruleFor resolves a result's rule definition, preferring ruleIndex when the
// producer supplies one.
func (r *sarifRun) ruleFor(result sarifResult) *sarifRule {
	rules := r.Tool.Driver.Rules
	if result.RuleIndex != nil && *result.RuleIndex >= 0 && *result.RuleIndex < len(rules) {
		return &rules[*result.RuleIndex]
	}
	for i := range rules {
		if rules[i].ID == result.RuleID {
			return &rules[i]
		}
	}
	return nil
}

// syntheticID builds the scanner-prefixed finding identifier, e.g.
// SEMGREP-CWE-89-001. seq is 1-based within one normalization pass.
func syntheticID(scanner, cwe, ruleID string, seq int) string {
	key := cwe
	if key == "" {
		key = shortRuleKey(ruleID)
	}
	return fmt.Sprintf("%s-%s-%03d", strings.ToUpper(scanner), key, seq)
}

func shortRuleKey(ruleID string) string {
	if ruleID == "" {
		return "UNKNOWN"
	}
	// Semgrep rule ids are dotted paths; the last segment is the rule name.
	if idx := strings.LastIndex(ruleID, "."); idx >= 0 && idx+1 < len(ruleID) {
		ruleID = ruleID[idx+1:]
	}
	return strings.ToUpper(ruleID)
}

func cvssFromSecuritySeverity(s string) float64 {
	score, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || score < 0 || score > 10 {
		return 0
	}
	return score
}
