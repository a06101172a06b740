package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl4ck0w1/vulnlynx/internal/adapters"
	"github.com/bl4ck0w1/vulnlynx/pkg/models"
)

// fakeAdapter emits canned findings without spawning a subprocess.
type fakeAdapter struct {
	name     string
	probeErr error
	runErr   error
	findings []models.Finding
}

func (a *fakeAdapter) Name() string { return a.name }
func (a *fakeAdapter) Probe() error { return a.probeErr }

func (a *fakeAdapter) Run(ctx context.Context, target string, config adapters.Config) (*adapters.RawOutput, error) {
	if a.runErr != nil {
		return nil, a.runErr
	}
	payload, _ := json.Marshal(a.findings)
	return &adapters.RawOutput{Stdout: payload}, nil
}

func (a *fakeAdapter) Normalize(raw *adapters.RawOutput) ([]models.Finding, error) {
	var findings []models.Finding
	if err := json.Unmarshal(raw.Stdout, &findings); err != nil {
		return nil, models.ErrOutputUnparsable
	}
	return findings, nil
}

// stuckAdapter blocks until its context is cancelled, standing in for a
// scanner subprocess that never finishes on its own.
type stuckAdapter struct {
	name string
}

func (a *stuckAdapter) Name() string { return a.name }
func (a *stuckAdapter) Probe() error { return nil }

func (a *stuckAdapter) Run(ctx context.Context, target string, config adapters.Config) (*adapters.RawOutput, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %s", models.ErrAdapterTimeout, a.name)
}

func (a *stuckAdapter) Normalize(raw *adapters.RawOutput) ([]models.Finding, error) {
	return nil, nil
}

type memoryStore struct {
	saved *models.ScanResult
}

func (s *memoryStore) Save(result *models.ScanResult) error {
	s.saved = result
	return nil
}

func fakeFinding(id, scanner, cwe string, sev models.Severity, file string, line int) models.Finding {
	return models.Finding{
		ID:       id,
		Scanner:  scanner,
		Severity: sev,
		Title:    "test finding " + id,
		CWEID:    cwe,
		Location: models.Location{File: file, LineStart: line, LineEnd: line},
	}
}

func newTestOrchestrator(store ResultStore, fakes ...*fakeAdapter) *Orchestrator {
	registry := adapters.NewRegistry()
	for _, a := range fakes {
		registry.Register(a)
	}
	return NewOrchestrator(registry, store, NewDeduplicator(3, nil), nil, Config{}, nil)
}

func TestRunScanMergesAcrossScanners(t *testing.T) {
	store := &memoryStore{}
	o := newTestOrchestrator(store,
		&fakeAdapter{name: "semgrep", findings: []models.Finding{
			fakeFinding("SEMGREP-CWE-89-001", "semgrep", "CWE-89", models.SeverityHigh, "/srv/app/app.py", 42),
		}},
		&fakeAdapter{name: "bandit", findings: []models.Finding{
			fakeFinding("BANDIT-CWE-89-001", "bandit", "CWE-89", models.SeverityMedium, "/srv/app/app.py", 44),
			fakeFinding("BANDIT-CWE-78-001", "bandit", "CWE-78", models.SeverityCritical, "/srv/app/run.py", 7),
		}},
	)

	result, err := o.RunScan(context.Background(), "/srv/app", nil, []models.Severity{models.SeverityCritical})
	require.NoError(t, err)

	assert.Equal(t, []string{"bandit", "semgrep"}, result.ScannersUsed)
	require.Len(t, result.Findings, 2)
	assert.Equal(t, 1, result.BySeverity[models.SeverityCritical])
	assert.Equal(t, 1, result.BySeverity[models.SeverityHigh])
	assert.Equal(t, 0, result.BySeverity[models.SeverityMedium])
	assert.True(t, result.ShouldFail)
	assert.Same(t, result, store.saved)
	require.NoError(t, result.Validate())
}

func TestRunScanAdapterFailureIsIsolated(t *testing.T) {
	store := &memoryStore{}
	o := newTestOrchestrator(store,
		&fakeAdapter{name: "semgrep", findings: []models.Finding{
			fakeFinding("SEMGREP-CWE-798-001", "semgrep", "CWE-798", models.SeverityMedium, "/srv/app/settings.py", 3),
		}},
		&fakeAdapter{name: "bandit", runErr: models.ErrOutputUnparsable},
	)

	result, err := o.RunScan(context.Background(), "/srv/app", nil, nil)
	require.NoError(t, err)

	require.Len(t, result.Findings, 1)
	assert.Contains(t, result.Metadata.Errors, "bandit")
	assert.False(t, result.ShouldFail)
}

func TestRunScanNoAdaptersAvailable(t *testing.T) {
	o := newTestOrchestrator(&memoryStore{},
		&fakeAdapter{name: "semgrep", probeErr: models.ErrAdapterUnavailable},
		&fakeAdapter{name: "bandit", probeErr: models.ErrAdapterUnavailable},
	)

	_, err := o.RunScan(context.Background(), "/srv/app", nil, nil)
	assert.ErrorIs(t, err, models.ErrNoAdaptersRan)
}

func TestRunScanUnknownScannerRecorded(t *testing.T) {
	o := newTestOrchestrator(&memoryStore{},
		&fakeAdapter{name: "semgrep", findings: []models.Finding{
			fakeFinding("SEMGREP-CWE-89-001", "semgrep", "CWE-89", models.SeverityLow, "/srv/app/app.py", 10),
		}},
	)

	result, err := o.RunScan(context.Background(), "/srv/app", []string{"semgrep", "snyk"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"semgrep"}, result.ScannersUsed)
	assert.Equal(t, "unknown scanner", result.Metadata.Errors["snyk"])
}

func TestRunScanSkipsUnavailableRequested(t *testing.T) {
	o := newTestOrchestrator(&memoryStore{},
		&fakeAdapter{name: "semgrep", findings: nil},
		&fakeAdapter{name: "bandit", probeErr: models.ErrAdapterUnavailable},
	)

	result, err := o.RunScan(context.Background(), "/srv/app", []string{"semgrep", "bandit"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"semgrep"}, result.ScannersUsed)
	assert.Contains(t, result.Metadata.Skipped, "bandit")
}

func TestRunScanPerAdapterTimeout(t *testing.T) {
	store := &memoryStore{}
	registry := adapters.NewRegistry()
	registry.Register(&fakeAdapter{name: "semgrep", findings: []models.Finding{
		fakeFinding("SEMGREP-CWE-89-001", "semgrep", "CWE-89", models.SeverityHigh, "/srv/app/app.py", 42),
	}})
	registry.Register(&stuckAdapter{name: "bandit"})

	o := NewOrchestrator(registry, store, NewDeduplicator(3, nil), nil, Config{
		AdapterTimeout: 50 * time.Millisecond,
		LaunchRate:     1000,
	}, nil)

	start := time.Now()
	result, err := o.RunScan(context.Background(), "/srv/app", nil, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Len(t, result.Findings, 1)
	assert.Equal(t, "SEMGREP-CWE-89-001", result.Findings[0].ID)
	assert.Contains(t, result.Metadata.Errors["bandit"], "timed out")
}

func TestRunScanOverallTimeoutTruncates(t *testing.T) {
	store := &memoryStore{}
	registry := adapters.NewRegistry()
	registry.Register(&fakeAdapter{name: "semgrep", findings: []models.Finding{
		fakeFinding("SEMGREP-CWE-798-001", "semgrep", "CWE-798", models.SeverityMedium, "/srv/app/settings.py", 3),
	}})
	registry.Register(&stuckAdapter{name: "bandit"})

	// Overall deadline elapses while bandit is still running; semgrep's
	// completed findings are kept.
	o := NewOrchestrator(registry, store, NewDeduplicator(3, nil), nil, Config{
		AdapterTimeout: 10 * time.Second,
		ScanTimeout:    100 * time.Millisecond,
		LaunchRate:     1000,
	}, nil)

	result, err := o.RunScan(context.Background(), "/srv/app", nil, nil)
	require.NoError(t, err)

	require.Len(t, result.Findings, 1)
	assert.Contains(t, result.Metadata.Errors, "bandit")
	assert.Same(t, result, store.saved)
}

func TestShouldFailThreshold(t *testing.T) {
	counts := map[models.Severity]int{
		models.SeverityCritical: 0,
		models.SeverityHigh:     2,
		models.SeverityMedium:   5,
	}

	assert.True(t, shouldFail(counts, []models.Severity{models.SeverityCritical, models.SeverityHigh}))
	assert.False(t, shouldFail(counts, []models.Severity{models.SeverityCritical}))
	assert.False(t, shouldFail(counts, nil))
}
