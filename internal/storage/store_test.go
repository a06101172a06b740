package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl4ck0w1/vulnlynx/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "scan_results.json"), "", nil)
	require.NoError(t, err)
	return store
}

func sampleResult() *models.ScanResult {
	findings := []models.Finding{
		{
			ID: "SEMGREP-CWE-89-001", Scanner: "semgrep", Severity: models.SeverityHigh,
			Title: "SQL injection", CWEID: "CWE-89", Fingerprint: "aaaa000011112222",
			Location:             models.Location{File: "app.py", LineStart: 42, LineEnd: 44},
			TriageStatus:         models.TriageUntriaged,
			ContributingScanners: []string{"bandit", "semgrep"},
		},
		{
			ID: "BANDIT-CWE-798-001", Scanner: "bandit", Severity: models.SeverityMedium,
			Title: "Hardcoded credential", CWEID: "CWE-798", Fingerprint: "bbbb000011112222",
			Location:     models.Location{File: "settings.py", LineStart: 3, LineEnd: 3},
			TriageStatus: models.TriageUntriaged,
		},
	}
	return &models.ScanResult{
		Timestamp:    time.Now().UTC(),
		Target:       "/srv/app",
		ScannersUsed: []string{"bandit", "semgrep"},
		Findings:     findings,
		BySeverity:   models.CountBySeverity(findings),
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(sampleResult()))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/app", loaded.Target)
	require.Len(t, loaded.Findings, 2)
	assert.Equal(t, "SEMGREP-CWE-89-001", loaded.Findings[0].ID)
	assert.Equal(t, []string{"bandit", "semgrep"}, loaded.Findings[0].ContributingScanners)
}

func TestLoadBeforeAnyScan(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load()
	assert.ErrorIs(t, err, models.ErrNoScanYet)
}

func TestLoadCorruptFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.ResultsPath(), []byte("{not json"), 0o644))

	_, err := store.Load()
	assert.ErrorIs(t, err, models.ErrStoreCorrupt)
}

func TestSaveRejectsInvalidResult(t *testing.T) {
	store := newTestStore(t)

	bad := sampleResult()
	bad.Target = ""
	assert.Error(t, store.Save(bad))
}

func TestApplyTriageMergesOnLoad(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(sampleResult()))

	err := store.ApplyTriage("SEMGREP-CWE-89-001", models.TriageAnnotation{
		Status:     models.TriageTruePositive,
		Rationale:  "user input reaches the query unsanitized",
		Confidence: 0.95,
	})
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)

	triaged := loaded.FindingByID("SEMGREP-CWE-89-001")
	require.NotNil(t, triaged)
	assert.Equal(t, models.TriageTruePositive, triaged.TriageStatus)
	assert.Equal(t, 0.95, triaged.TriageConfidence)

	untouched := loaded.FindingByID("BANDIT-CWE-798-001")
	require.NotNil(t, untouched)
	assert.Equal(t, models.TriageUntriaged, untouched.TriageStatus)
}

func TestApplyTriageUnknownFinding(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(sampleResult()))

	err := store.ApplyTriage("NOPE-001", models.TriageAnnotation{Status: models.TriageFalsePositive})
	assert.ErrorIs(t, err, models.ErrFindingNotFound)
}

func TestApplyTriageBeforeAnyScan(t *testing.T) {
	store := newTestStore(t)

	err := store.ApplyTriage("SEMGREP-CWE-89-001", models.TriageAnnotation{Status: models.TriageTruePositive})
	assert.ErrorIs(t, err, models.ErrNoScanYet)
}

func TestApplyTriageInvalidStatus(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(sampleResult()))

	err := store.ApplyTriage("SEMGREP-CWE-89-001", models.TriageAnnotation{Status: "confirmed"})
	assert.Error(t, err)
}

func TestSaveClearsStaleTriage(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(sampleResult()))
	require.NoError(t, store.ApplyTriage("SEMGREP-CWE-89-001", models.TriageAnnotation{
		Status: models.TriageFalsePositive,
	}))

	// A fresh scan replaces the result set; prior verdicts no longer apply.
	require.NoError(t, store.Save(sampleResult()))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, models.TriageUntriaged, loaded.FindingByID("SEMGREP-CWE-89-001").TriageStatus)
	_, err = os.Stat(store.TriagePath())
	assert.True(t, os.IsNotExist(err))
}

func TestStatusDerivation(t *testing.T) {
	store := newTestStore(t)

	summary, err := store.Status()
	require.NoError(t, err)
	assert.Equal(t, models.PostureUnknown, summary.SecurityPosture)

	require.NoError(t, store.Save(sampleResult()))

	summary, err = store.Status()
	require.NoError(t, err)
	assert.Equal(t, models.PostureMediumRisk, summary.SecurityPosture)
	assert.Equal(t, 2, summary.TotalFindings)
	assert.Equal(t, models.TriageNotStarted, summary.TriageStatus)

	require.NoError(t, store.ApplyTriage("SEMGREP-CWE-89-001", models.TriageAnnotation{
		Status: models.TriageTruePositive,
	}))
	summary, err = store.Status()
	require.NoError(t, err)
	assert.Equal(t, models.TriageInProgress, summary.TriageStatus)
	assert.Equal(t, 1, summary.TruePositives)
}
