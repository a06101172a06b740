package models

import (
	"fmt"
	"sort"
	"strings"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists all severity levels from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

var severityRank = map[Severity]int{
	SeverityCritical: 5,
	SeverityHigh:     4,
	SeverityMedium:   3,
	SeverityLow:      2,
	SeverityInfo:     1,
}

func (s Severity) Rank() int {
	return severityRank[s]
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("invalid severity: %s", s)
	}
	return sev, nil
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

const (
	TriageUntriaged     = "untriaged"
	TriageTruePositive  = "true_positive"
	TriageFalsePositive = "false_positive"
	TriageNeedsInfo     = "needs_info"
)

var validTriageStatus = map[string]bool{
	TriageUntriaged:     true,
	TriageTruePositive:  true,
	TriageFalsePositive: true,
	TriageNeedsInfo:     true,
}

const (
	DataflowSource      = "source"
	DataflowPropagation = "propagation"
	DataflowSink        = "sink"
)

type Location struct {
	File        string `json:"file"`
	LineStart   int    `json:"line_start"`
	LineEnd     int    `json:"line_end"`
	CodeSnippet string `json:"code_snippet,omitempty"`
}

type DataflowStep struct {
	Step        int      `json:"step"`
	Type        string   `json:"type"` // source / propagation / sink
	Location    Location `json:"location"`
	Description string   `json:"description,omitempty"`
}

// Finding is one normalized vulnerability instance produced by a scanner
// adapter. Fingerprint and ContributingScanners are derived during
// deduplication, never supplied by a scanner. Triage fields are written by an
// external triage process and merged in by the findings store.
type Finding struct {
	ID                   string         `json:"id"`
	Scanner              string         `json:"scanner"`
	Severity             Severity       `json:"severity"`
	Title                string         `json:"title"`
	Description          string         `json:"description,omitempty"`
	Location             Location       `json:"location"`
	CWEID                string         `json:"cwe_id,omitempty"`
	OWASPCategory        string         `json:"owasp_category,omitempty"`
	CVSSScore            float64        `json:"cvss_score,omitempty"`
	Dataflow             []DataflowStep `json:"dataflow,omitempty"`
	Fingerprint          string         `json:"fingerprint,omitempty"`
	TriageStatus         string         `json:"triage_status"`
	TriageRationale      string         `json:"rationale,omitempty"`
	TriageConfidence     float64        `json:"confidence,omitempty"`
	ContributingScanners []string       `json:"contributing_scanners,omitempty"`
}

// TriageAnnotation is an external-agent-authored side record keyed by finding
// ID. The orchestrator never creates these.
type TriageAnnotation struct {
	FindingID  string  `json:"finding_id"`
	Status     string  `json:"triage_status"`
	Rationale  string  `json:"rationale,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

func (f *Finding) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("finding id is required")
	}
	if f.Scanner == "" {
		return fmt.Errorf("finding scanner is required")
	}
	if f.Title == "" {
		return fmt.Errorf("finding title is required")
	}
	if !f.Severity.Valid() {
		return fmt.Errorf("invalid severity: %s", f.Severity)
	}
	if f.Location.LineStart > f.Location.LineEnd {
		return fmt.Errorf("location line_start %d exceeds line_end %d", f.Location.LineStart, f.Location.LineEnd)
	}
	if f.CVSSScore < 0 || f.CVSSScore > 10 {
		return fmt.Errorf("cvss score must be between 0.0 and 10.0")
	}
	if f.TriageStatus != "" && !validTriageStatus[f.TriageStatus] {
		return fmt.Errorf("invalid triage status: %s", f.TriageStatus)
	}
	for i, step := range f.Dataflow {
		switch step.Type {
		case DataflowSource, DataflowPropagation, DataflowSink:
		default:
			return fmt.Errorf("dataflow step %d has invalid type: %s", i, step.Type)
		}
	}
	return nil
}

func (a *TriageAnnotation) Validate() error {
	if a.FindingID == "" {
		return fmt.Errorf("finding id is required")
	}
	if !validTriageStatus[a.Status] {
		return fmt.Errorf("invalid triage status: %s", a.Status)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0")
	}
	return nil
}

func (f *Finding) IsTriaged() bool {
	return f.TriageStatus != "" && f.TriageStatus != TriageUntriaged
}

func (f *Finding) HasDataflow() bool {
	return len(f.Dataflow) > 0
}

// AddContributingScanner records a scanner in the contributing set, keeping
// the set sorted and free of duplicates.
func (f *Finding) AddContributingScanner(scanner string) {
	for _, s := range f.ContributingScanners {
		if s == scanner {
			return
		}
	}
	f.ContributingScanners = append(f.ContributingScanners, scanner)
	sort.Strings(f.ContributingScanners)
}
