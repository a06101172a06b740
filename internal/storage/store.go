package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/vulnlynx/pkg/models"
	"github.com/bl4ck0w1/vulnlynx/pkg/utils"
)

// Store is the durable home of the latest scan result plus triage
// annotations. Writes go through atomic temp-file renames so concurrent
// readers never observe a half-written document; readers retry once to
// tolerate the rename window.
type Store struct {
	resultsPath string
	triagePath  string
	logger      *logrus.Logger
	mu          sync.Mutex // serializes writers; readers rely on atomic renames
}

func NewStore(resultsPath, triagePath string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if resultsPath == "" {
		return nil, fmt.Errorf("results path is required")
	}
	if triagePath == "" {
		triagePath = filepath.Join(filepath.Dir(resultsPath), "triage.json")
	}
	if err := utils.EnsureDir(filepath.Dir(resultsPath)); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Store{
		resultsPath: resultsPath,
		triagePath:  triagePath,
		logger:      logger,
	}, nil
}

func (s *Store) ResultsPath() string { return s.resultsPath }
func (s *Store) TriagePath() string  { return s.triagePath }

// Save persists result, fully replacing any prior one. Stale triage
// annotations from the previous scan are discarded alongside it.
func (s *Store) Save(result *models.ScanResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("invalid scan result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSONAtomic(s.resultsPath, result); err != nil {
		return fmt.Errorf("save scan result: %w", err)
	}
	if err := os.Remove(s.triagePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warnf("Failed to clear stale triage annotations: %v", err)
	}

	s.logger.Infof("Scan result saved to %s (%d findings)", s.resultsPath, len(result.Findings))
	return nil
}

// Load returns the current scan result with triage annotations merged in.
// A missing file is ErrNoScanYet; an undecodable file is ErrStoreCorrupt.
func (s *Store) Load() (*models.ScanResult, error) {
	data, err := readWithRetry(s.resultsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.ErrNoScanYet
		}
		return nil, fmt.Errorf("read scan result: %w", err)
	}

	var result models.ScanResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreCorrupt, err)
	}

	s.mergeTriage(&result)
	return &result, nil
}

// ApplyTriage records an external triage verdict for one finding. It is the
// only mutation path after Save and is safe to call concurrently with
// Load/Status.
func (s *Store) ApplyTriage(findingID string, annotation models.TriageAnnotation) error {
	annotation.FindingID = findingID
	if err := annotation.Validate(); err != nil {
		return fmt.Errorf("invalid triage annotation: %w", err)
	}

	result, err := s.Load()
	if err != nil {
		return err
	}
	if result.FindingByID(findingID) == nil {
		return fmt.Errorf("%w: %s", models.ErrFindingNotFound, findingID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	annotations, err := s.loadAnnotations()
	if err != nil {
		return err
	}
	annotations[findingID] = annotation

	if err := writeJSONAtomic(s.triagePath, annotations); err != nil {
		return fmt.Errorf("save triage annotations: %w", err)
	}

	s.logger.Infof("Triage applied to %s: %s", findingID, annotation.Status)
	return nil
}

// Status derives the posture summary. Before any scan it reports a complete,
// zero-filled summary with an unknown posture rather than an error.
func (s *Store) Status() (models.StatusSummary, error) {
	result, err := s.Load()
	if err != nil {
		if errors.Is(err, models.ErrNoScanYet) {
			return models.EmptyStatusSummary(), nil
		}
		return models.StatusSummary{}, err
	}
	return result.Summarize(), nil
}

func (s *Store) mergeTriage(result *models.ScanResult) {
	annotations, err := s.loadAnnotations()
	if err != nil {
		s.logger.Warnf("Failed to load triage annotations: %v", err)
		return
	}
	for i := range result.Findings {
		f := &result.Findings[i]
		if ann, ok := annotations[f.ID]; ok {
			f.TriageStatus = ann.Status
			f.TriageRationale = ann.Rationale
			f.TriageConfidence = ann.Confidence
		}
	}
}

func (s *Store) loadAnnotations() (map[string]models.TriageAnnotation, error) {
	data, err := readWithRetry(s.triagePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]models.TriageAnnotation), nil
		}
		return nil, fmt.Errorf("read triage annotations: %w", err)
	}
	annotations := make(map[string]models.TriageAnnotation)
	if err := json.Unmarshal(data, &annotations); err != nil {
		return nil, fmt.Errorf("%w: triage annotations: %v", models.ErrStoreCorrupt, err)
	}
	return annotations, nil
}

// readWithRetry rereads once after a short pause, covering the window where a
// concurrent atomic rename makes the file briefly disappear.
func readWithRetry(path string) ([]byte, error) {
	var data []byte
	err := utils.Retry(2, 25*time.Millisecond, func() error {
		var readErr error
		data, readErr = os.ReadFile(path)
		return readErr
	})
	return data, err
}

func writeJSONAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}
