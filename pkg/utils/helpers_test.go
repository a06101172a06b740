package utils

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = Retry(3, time.Millisecond, func() error {
		calls++
		return errors.New("permanent")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestEnsureDirAndFileExists(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")

	require.NoError(t, EnsureDir(nested))
	assert.True(t, FileExists(nested))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}

func TestStringInSlice(t *testing.T) {
	assert.True(t, StringInSlice("semgrep", []string{"bandit", "semgrep"}))
	assert.False(t, StringInSlice("gosec", []string{"bandit", "semgrep"}))
	assert.False(t, StringInSlice("semgrep", nil))
}

func TestHumanizeDuration(t *testing.T) {
	assert.Equal(t, "250ms", HumanizeDuration(250*time.Millisecond))
	assert.Equal(t, "12.5s", HumanizeDuration(12500*time.Millisecond))
	assert.Equal(t, "2m5s", HumanizeDuration(125*time.Second))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug", Format: "json", EnableConsole: true}, "vulnlynx", "test")
	require.NoError(t, err)
	assert.Equal(t, "debug", logger.GetLevel().String())

	// Unparseable level falls back to info instead of failing startup.
	logger, err = NewLogger(LogConfig{Level: "loud"}, "vulnlynx", "test")
	require.NoError(t, err)
	assert.Equal(t, "info", logger.GetLevel().String())
}

func TestMetricsCollectorRegisters(t *testing.T) {
	m := NewMetricsCollector(false)

	m.ScansTotal.WithLabelValues("completed").Inc()
	m.ObserveAdapter("semgrep", 2*time.Second)
	m.ToolCalls.WithLabelValues("security_scan", "ok").Inc()

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["vulnlynx_scans_total"])
	assert.True(t, names["vulnlynx_adapter_duration_seconds"])
	assert.True(t, names["vulnlynx_tool_calls_total"])
}
