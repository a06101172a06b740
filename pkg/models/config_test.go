package models

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 600*time.Second, cfg.Global.ScanTimeout)
	assert.Equal(t, 120*time.Second, cfg.Scanners.AdapterTimeout)
	assert.Equal(t, []Severity{SeverityCritical, SeverityHigh}, cfg.Scanners.FailOn)
	assert.Equal(t, 3, cfg.Dedup.BucketWidth)
	assert.Equal(t, "127.0.0.1:8941", cfg.Server.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, filepath.Join("data", "scan_results.json"), filepath.Clean(cfg.Storage.ResultsFile))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.LogFormat = "xml"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Scanners.FailOn = []Severity{"urgent"}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Reporting.Formats = []string{"pdf"}
	assert.Error(t, cfg.Validate())
}

func TestConfigSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Scanners.Default = []string{"semgrep"}
	cfg.Scanners.Adapters["semgrep"] = AdapterOptions{
		Rulesets: []string{"p/security-audit"},
		Timeout:  90 * time.Second,
	}
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"semgrep"}, loaded.Scanners.Default)
	assert.Equal(t, 90*time.Second, loaded.Scanners.Adapters["semgrep"].Timeout)
	assert.Equal(t, cfg.Dedup.BucketWidth, loaded.Dedup.BucketWidth)
}
