package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFinding() Finding {
	return Finding{
		ID:       "SEMGREP-CWE-89-001",
		Scanner:  "semgrep",
		Severity: SeverityHigh,
		Title:    "SQL injection via string concatenation",
		Location: Location{File: "app/db.py", LineStart: 42, LineEnd: 44},
		CWEID:    "CWE-89",
	}
}

func TestSeverityOrdering(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Greater(t, SeverityLow.Rank(), SeverityInfo.Rank())

	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityHigh, SeverityCritical))
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityCritical, SeverityInfo))
	assert.Equal(t, SeverityMedium, MaxSeverity(SeverityMedium, SeverityMedium))
}

func TestParseSeverity(t *testing.T) {
	sev, err := ParseSeverity("  HIGH ")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, sev)

	_, err = ParseSeverity("catastrophic")
	assert.Error(t, err)
}

func TestFindingValidate(t *testing.T) {
	f := validFinding()
	require.NoError(t, f.Validate())

	missing := validFinding()
	missing.Scanner = ""
	assert.Error(t, missing.Validate())

	badSev := validFinding()
	badSev.Severity = "urgent"
	assert.Error(t, badSev.Validate())

	badRange := validFinding()
	badRange.Location.LineStart = 50
	badRange.Location.LineEnd = 42
	assert.Error(t, badRange.Validate())

	badCVSS := validFinding()
	badCVSS.CVSSScore = 11.0
	assert.Error(t, badCVSS.Validate())

	badFlow := validFinding()
	badFlow.Dataflow = []DataflowStep{{Step: 1, Type: "entry"}}
	assert.Error(t, badFlow.Validate())

	goodFlow := validFinding()
	goodFlow.Dataflow = []DataflowStep{
		{Step: 1, Type: DataflowSource},
		{Step: 2, Type: DataflowPropagation},
		{Step: 3, Type: DataflowSink},
	}
	assert.NoError(t, goodFlow.Validate())
}

func TestTriageAnnotationValidate(t *testing.T) {
	a := TriageAnnotation{FindingID: "F-1", Status: TriageTruePositive, Confidence: 0.9}
	require.NoError(t, a.Validate())

	a.Status = "confirmed"
	assert.Error(t, a.Validate())

	a.Status = TriageFalsePositive
	a.Confidence = 1.5
	assert.Error(t, a.Validate())
}

func TestAddContributingScanner(t *testing.T) {
	f := validFinding()
	f.AddContributingScanner("semgrep")
	f.AddContributingScanner("bandit")
	f.AddContributingScanner("semgrep")

	assert.Equal(t, []string{"bandit", "semgrep"}, f.ContributingScanners)
}

func TestIsTriaged(t *testing.T) {
	f := validFinding()
	assert.False(t, f.IsTriaged())

	f.TriageStatus = TriageUntriaged
	assert.False(t, f.IsTriaged())

	f.TriageStatus = TriageNeedsInfo
	assert.True(t, f.IsTriaged())
}
