package models

import (
	"fmt"
	"time"
)

// ScanMetadata carries per-adapter diagnostics for a completed run. Errors is
// keyed by scanner name; Skipped lists adapters that probed unavailable.
type ScanMetadata struct {
	Errors     map[string]string `json:"errors,omitempty"`
	Skipped    []string          `json:"skipped,omitempty"`
	DurationMS int64             `json:"duration_ms,omitempty"`
}

// ScanResult is one completed orchestration run. Every run produces a fresh
// result that fully replaces the previous one in the findings store.
type ScanResult struct {
	Timestamp    time.Time        `json:"timestamp"`
	Target       string           `json:"target"`
	ScannersUsed []string         `json:"scanners_used"`
	Findings     []Finding        `json:"findings"`
	BySeverity   map[Severity]int `json:"by_severity"`
	ShouldFail   bool             `json:"should_fail"`
	Metadata     ScanMetadata     `json:"metadata"`
}

// CountBySeverity tallies findings into a zero-filled map covering all five
// severity levels.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int, len(Severities))
	for _, s := range Severities {
		counts[s] = 0
	}
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

func (r *ScanResult) Validate() error {
	if r.Target == "" {
		return fmt.Errorf("scan target is required")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("scan timestamp is required")
	}
	seen := make(map[string]string, len(r.Findings))
	for i := range r.Findings {
		f := &r.Findings[i]
		if err := f.Validate(); err != nil {
			return fmt.Errorf("finding %s: %w", f.ID, err)
		}
		if f.Fingerprint != "" {
			if other, dup := seen[f.Fingerprint]; dup {
				return fmt.Errorf("duplicate fingerprint %s shared by %s and %s", f.Fingerprint, other, f.ID)
			}
			seen[f.Fingerprint] = f.ID
		}
	}
	total := 0
	for _, c := range r.BySeverity {
		total += c
	}
	if total != len(r.Findings) {
		return fmt.Errorf("severity counts (%d) do not match findings (%d)", total, len(r.Findings))
	}
	return nil
}

func (r *ScanResult) FindingByID(id string) *Finding {
	for i := range r.Findings {
		if r.Findings[i].ID == id {
			return &r.Findings[i]
		}
	}
	return nil
}

// Security posture levels reported by StatusSummary.
const (
	PostureUnknown    = "unknown"
	PostureCritical   = "critical"
	PostureHighRisk   = "high_risk"
	PostureMediumRisk = "medium_risk"
	PostureGood       = "good"
)

// Triage progress levels reported by StatusSummary.
const (
	TriageNotStarted = "not_started"
	TriageInProgress = "in_progress"
	TriageCompleted  = "completed"
)

type StatusSummary struct {
	Target          string           `json:"target,omitempty"`
	LastScan        time.Time        `json:"last_scan,omitempty"`
	ScannersUsed    []string         `json:"scanners_used,omitempty"`
	TotalFindings   int              `json:"total_findings"`
	BySeverity      map[Severity]int `json:"by_severity"`
	SecurityPosture string           `json:"security_posture"`
	TriageStatus    string           `json:"triage_status"`
	TruePositives   int              `json:"true_positives,omitempty"`
	FalsePositives  int              `json:"false_positives,omitempty"`
	ShouldFail      bool             `json:"should_fail"`
}

// EmptyStatusSummary is what the status resource reports before any scan has
// run: zero-filled counts and an unknown posture.
func EmptyStatusSummary() StatusSummary {
	return StatusSummary{
		BySeverity:      CountBySeverity(nil),
		SecurityPosture: PostureUnknown,
		TriageStatus:    TriageNotStarted,
	}
}

// Summarize derives the status summary for a completed scan result.
func (r *ScanResult) Summarize() StatusSummary {
	summary := StatusSummary{
		Target:        r.Target,
		LastScan:      r.Timestamp,
		ScannersUsed:  r.ScannersUsed,
		TotalFindings: len(r.Findings),
		BySeverity:    r.BySeverity,
		ShouldFail:    r.ShouldFail,
	}
	if summary.BySeverity == nil {
		summary.BySeverity = CountBySeverity(r.Findings)
	}

	switch {
	case summary.BySeverity[SeverityCritical] > 0:
		summary.SecurityPosture = PostureCritical
	case summary.BySeverity[SeverityHigh] > 5:
		summary.SecurityPosture = PostureHighRisk
	case summary.BySeverity[SeverityHigh] >= 1:
		summary.SecurityPosture = PostureMediumRisk
	default:
		summary.SecurityPosture = PostureGood
	}

	triaged := 0
	for i := range r.Findings {
		f := &r.Findings[i]
		if !f.IsTriaged() {
			continue
		}
		triaged++
		switch f.TriageStatus {
		case TriageTruePositive:
			summary.TruePositives++
		case TriageFalsePositive:
			summary.FalsePositives++
		}
	}
	switch {
	case len(r.Findings) == 0 || triaged == 0:
		summary.TriageStatus = TriageNotStarted
	case triaged == len(r.Findings):
		summary.TriageStatus = TriageCompleted
	default:
		summary.TriageStatus = TriageInProgress
	}

	return summary
}
