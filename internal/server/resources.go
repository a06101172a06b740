package server

import (
	"errors"
	"strings"

	"github.com/bl4ck0w1/vulnlynx/pkg/models"
)

// Resource identifiers.
const (
	ResourceFindings = "findings"
	ResourceStatus   = "status"
	ResourceConfig   = "config"
)

// ConfigResource describes the adapter setup to external callers.
type ConfigResource struct {
	RegisteredScanners []string          `json:"registered_scanners"`
	AvailableScanners  []string          `json:"available_scanners"`
	DefaultScanners    []string          `json:"default_scanners"`
	DefaultFailOn      []models.Severity `json:"default_fail_on"`
	DedupBucketWidth   int               `json:"dedup_bucket_width"`
}

type FindingsResource struct {
	Target   string           `json:"target,omitempty"`
	Total    int              `json:"total"`
	Findings []models.Finding `json:"findings"`
}

// HandleResource serves the read-only resource queries. Unknown identifiers
// come back as NotFound-shaped payloads, never as a panic or crash.
func (s *Server) HandleResource(id string) (interface{}, *ErrorPayload) {
	switch {
	case id == ResourceFindings:
		return s.listFindings()
	case strings.HasPrefix(id, ResourceFindings+"/"):
		return s.getFinding(strings.TrimPrefix(id, ResourceFindings+"/"))
	case id == ResourceStatus:
		return s.getStatus()
	case id == ResourceConfig:
		return s.getConfig(), nil
	default:
		return nil, &ErrorPayload{
			Error:      "not_found",
			Suggestion: "known resources: findings, findings/{id}, status, config",
		}
	}
}

func (s *Server) listFindings() (interface{}, *ErrorPayload) {
	result, err := s.store.Load()
	if err != nil {
		if errors.Is(err, models.ErrNoScanYet) {
			return FindingsResource{Findings: []models.Finding{}}, nil
		}
		s.logger.Errorf("Failed to load findings: %v", err)
		return nil, &ErrorPayload{Error: "store_error", Suggestion: err.Error()}
	}
	return FindingsResource{
		Target:   result.Target,
		Total:    len(result.Findings),
		Findings: result.Findings,
	}, nil
}

func (s *Server) getFinding(id string) (interface{}, *ErrorPayload) {
	result, err := s.store.Load()
	if err != nil {
		if errors.Is(err, models.ErrNoScanYet) {
			return nil, &ErrorPayload{Error: "not_found", Suggestion: "run security_scan first"}
		}
		s.logger.Errorf("Failed to load findings: %v", err)
		return nil, &ErrorPayload{Error: "store_error", Suggestion: err.Error()}
	}
	if finding := result.FindingByID(id); finding != nil {
		return finding, nil
	}
	return nil, &ErrorPayload{Error: "not_found", Suggestion: "list ids via the findings resource"}
}

func (s *Server) getStatus() (interface{}, *ErrorPayload) {
	summary, err := s.store.Status()
	if err != nil {
		s.logger.Errorf("Failed to derive status: %v", err)
		return nil, &ErrorPayload{Error: "store_error", Suggestion: err.Error()}
	}
	return summary, nil
}

func (s *Server) getConfig() ConfigResource {
	return ConfigResource{
		RegisteredScanners: s.registry.Names(),
		AvailableScanners:  s.registry.Available(),
		DefaultScanners:    s.config.Scanners.Default,
		DefaultFailOn:      s.config.Scanners.FailOn,
		DedupBucketWidth:   s.config.Dedup.BucketWidth,
	}
}
