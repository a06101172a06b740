package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bl4ck0w1/vulnlynx/pkg/models"
)

// Tool names.
const (
	ToolSecurityScan   = "security_scan"
	ToolSecurityTriage = "security_triage"
	ToolSecurityFix    = "security_fix"
)

// External capability names the triage and fix tools point at. The server
// never performs the reasoning itself; it only emits these instructions.
const (
	SkillTriage = "security-triage"
	SkillFix    = "security-fix"
)

// SkillInvocation tells an external agent which capability to run and where
// to read input and write output.
type SkillInvocation struct {
	Action      string                 `json:"action"` // always "invoke_skill"
	Skill       string                 `json:"skill"`
	Input       map[string]interface{} `json:"input"`
	Output      string                 `json:"output"`
	Instruction string                 `json:"instruction"`
}

// ScanSummary is the scan tool's response: counts and verdict, plus where the
// full result was persisted.
type ScanSummary struct {
	Target        string                  `json:"target"`
	Timestamp     time.Time               `json:"timestamp"`
	ScannersUsed  []string                `json:"scanners_used"`
	TotalFindings int                     `json:"total_findings"`
	BySeverity    map[models.Severity]int `json:"by_severity"`
	ShouldFail    bool                    `json:"should_fail"`
	ResultPath    string                  `json:"result_path"`
	Errors        map[string]string       `json:"errors,omitempty"`
}

// HandleTool dispatches a tool invocation. Every failure path returns a
// structured payload; internal errors never escape as panics.
func (s *Server) HandleTool(ctx context.Context, name string, params map[string]interface{}) (interface{}, *ErrorPayload) {
	var payload interface{}
	var errPayload *ErrorPayload

	switch name {
	case ToolSecurityScan:
		payload, errPayload = s.toolScan(ctx, params)
	case ToolSecurityTriage:
		payload, errPayload = s.toolTriage(params)
	case ToolSecurityFix:
		payload, errPayload = s.toolFix(params)
	default:
		errPayload = &ErrorPayload{
			Error:      "unknown_tool",
			Suggestion: "known tools: security_scan, security_triage, security_fix",
		}
	}

	if s.metrics != nil {
		outcome := "ok"
		if errPayload != nil {
			outcome = "error"
		}
		s.metrics.ToolCalls.WithLabelValues(name, outcome).Inc()
	}
	return payload, errPayload
}

func (s *Server) toolScan(ctx context.Context, params map[string]interface{}) (interface{}, *ErrorPayload) {
	target, _ := params["target"].(string)
	if target == "" {
		return nil, &ErrorPayload{Error: "missing_target", Suggestion: "provide a target path to scan"}
	}

	scanners := stringSlice(params["scanners"])
	if len(scanners) == 0 {
		scanners = s.config.Scanners.Default
	}

	failOn := s.config.Scanners.FailOn
	if raw := stringSlice(params["fail_on"]); len(raw) > 0 {
		failOn = failOn[:0:0]
		for _, v := range raw {
			sev, err := models.ParseSeverity(v)
			if err != nil {
				return nil, &ErrorPayload{Error: "invalid_fail_on", Suggestion: err.Error()}
			}
			failOn = append(failOn, sev)
		}
	}

	result, err := s.runner.RunScan(ctx, target, scanners, failOn)
	if err != nil {
		if errors.Is(err, models.ErrNoAdaptersRan) {
			return nil, &ErrorPayload{
				Error:      "no_scanners_available",
				Suggestion: "install at least one supported scanner or check the config resource",
			}
		}
		s.logger.Errorf("Scan tool failed: %v", err)
		return nil, &ErrorPayload{Error: "scan_failed", Suggestion: err.Error()}
	}

	return ScanSummary{
		Target:        result.Target,
		Timestamp:     result.Timestamp,
		ScannersUsed:  result.ScannersUsed,
		TotalFindings: len(result.Findings),
		BySeverity:    result.BySeverity,
		ShouldFail:    result.ShouldFail,
		ResultPath:    s.store.ResultsPath(),
		Errors:        result.Metadata.Errors,
	}, nil
}

// toolTriage does not triage. It hands back an invoke_skill instruction
// pointing the external agent at the triage capability.
func (s *Server) toolTriage(params map[string]interface{}) (interface{}, *ErrorPayload) {
	result, err := s.loadNonEmpty()
	if err != nil {
		return nil, err
	}

	input := map[string]interface{}{
		"findings_file":  s.store.ResultsPath(),
		"total_findings": len(result.Findings),
	}
	if ref, ok := params["findings_ref"].(string); ok && ref != "" {
		input["findings_ref"] = ref
	}

	return SkillInvocation{
		Action: "invoke_skill",
		Skill:  SkillTriage,
		Input:  input,
		Output: s.store.TriagePath(),
		Instruction: fmt.Sprintf(
			"Review the %d findings in %s, classify each as true_positive, false_positive, or needs_info, and write annotations keyed by finding id to %s.",
			len(result.Findings), s.store.ResultsPath(), s.store.TriagePath()),
	}, nil
}

// toolFix mirrors toolTriage: it scopes the fix capability to the requested
// finding ids, defaulting to every confirmed true positive.
func (s *Server) toolFix(params map[string]interface{}) (interface{}, *ErrorPayload) {
	result, err := s.loadNonEmpty()
	if err != nil {
		return nil, err
	}

	ids := stringSlice(params["finding_ids"])
	if len(ids) > 0 {
		for _, id := range ids {
			if result.FindingByID(id) == nil {
				return nil, &ErrorPayload{
					Error:      "finding_not_found",
					Suggestion: fmt.Sprintf("no finding with id %s; list ids via the findings resource", id),
				}
			}
		}
	} else {
		for i := range result.Findings {
			if result.Findings[i].TriageStatus == models.TriageTruePositive {
				ids = append(ids, result.Findings[i].ID)
			}
		}
		if len(ids) == 0 {
			return nil, &ErrorPayload{
				Error:      "no_confirmed_findings",
				Suggestion: "run security_triage first or pass explicit finding_ids",
			}
		}
	}

	return SkillInvocation{
		Action: "invoke_skill",
		Skill:  SkillFix,
		Input: map[string]interface{}{
			"findings_file": s.store.ResultsPath(),
			"finding_ids":   ids,
		},
		Output: s.store.ResultsPath(),
		Instruction: fmt.Sprintf(
			"Generate and apply fixes for findings %v described in %s, then update each finding's status.",
			ids, s.store.ResultsPath()),
	}, nil
}

func (s *Server) loadNonEmpty() (*models.ScanResult, *ErrorPayload) {
	result, err := s.store.Load()
	if err != nil {
		if errors.Is(err, models.ErrNoScanYet) {
			return nil, &ErrorPayload{Error: "no_findings", Suggestion: "run security_scan first"}
		}
		s.logger.Errorf("Failed to load findings: %v", err)
		return nil, &ErrorPayload{Error: "store_error", Suggestion: err.Error()}
	}
	if len(result.Findings) == 0 {
		return nil, &ErrorPayload{Error: "no_findings", Suggestion: "run security_scan first"}
	}
	return result, nil
}

func stringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		var out []string
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
