package models

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Global    GlobalConfig    `yaml:"global" json:"global"`
	Scanners  ScannersConfig  `yaml:"scanners" json:"scanners"`
	Dedup     DedupConfig     `yaml:"dedup" json:"dedup"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Reporting ReportingConfig `yaml:"reporting" json:"reporting"`
}

type GlobalConfig struct {
	LogLevel    string        `yaml:"log_level" json:"log_level"`
	LogFormat   string        `yaml:"log_format" json:"log_format"`
	LogFile     string        `yaml:"log_file" json:"log_file"`
	DataDir     string        `yaml:"data_dir" json:"data_dir"`
	ScanTimeout time.Duration `yaml:"scan_timeout" json:"scan_timeout"`
}

type ScannersConfig struct {
	// Default names the adapters used when a scan request does not specify
	// any. Empty means "all available".
	Default        []string                  `yaml:"default" json:"default"`
	FailOn         []Severity                `yaml:"fail_on" json:"fail_on"`
	AdapterTimeout time.Duration             `yaml:"adapter_timeout" json:"adapter_timeout"`
	LaunchRate     float64                   `yaml:"launch_rate" json:"launch_rate"`
	Adapters       map[string]AdapterOptions `yaml:"adapters" json:"adapters"`
}

// AdapterOptions carries adapter-specific flags from the config file through
// to each adapter's Run invocation.
type AdapterOptions struct {
	Rulesets   []string      `yaml:"rulesets" json:"rulesets"`
	Exclusions []string      `yaml:"exclusions" json:"exclusions"`
	ExtraArgs  []string      `yaml:"extra_args" json:"extra_args"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

type DedupConfig struct {
	// BucketWidth is the line-bucket size used by fingerprinting to absorb
	// off-by-a-few-lines disagreement between scanners.
	BucketWidth int `yaml:"bucket_width" json:"bucket_width"`
}

type StorageConfig struct {
	ResultsFile string `yaml:"results_file" json:"results_file"`
	TriageFile  string `yaml:"triage_file" json:"triage_file"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr" json:"listen_addr"`
	EnableMetrics   bool          `yaml:"enable_metrics" json:"enable_metrics"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type ReportingConfig struct {
	OutputDir string   `yaml:"output_dir" json:"output_dir"`
	Formats   []string `yaml:"formats" json:"formats"`
}

func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = "info"
	}
	if c.Global.LogFormat == "" {
		c.Global.LogFormat = "json"
	}
	if c.Global.DataDir == "" {
		c.Global.DataDir = "./data"
	}
	if c.Global.ScanTimeout <= 0 {
		c.Global.ScanTimeout = 600 * time.Second
	}
	if c.Scanners.AdapterTimeout <= 0 {
		c.Scanners.AdapterTimeout = 120 * time.Second
	}
	if c.Scanners.LaunchRate <= 0 {
		c.Scanners.LaunchRate = 4
	}
	if len(c.Scanners.FailOn) == 0 {
		c.Scanners.FailOn = []Severity{SeverityCritical, SeverityHigh}
	}
	if c.Scanners.Adapters == nil {
		c.Scanners.Adapters = make(map[string]AdapterOptions)
	}
	if c.Dedup.BucketWidth <= 0 {
		c.Dedup.BucketWidth = 3
	}
	if c.Storage.ResultsFile == "" {
		c.Storage.ResultsFile = filepath.Join(c.Global.DataDir, "scan_results.json")
	}
	if c.Storage.TriageFile == "" {
		c.Storage.TriageFile = filepath.Join(filepath.Dir(c.Storage.ResultsFile), "triage.json")
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1:8941"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}
	if c.Reporting.OutputDir == "" {
		c.Reporting.OutputDir = "./reports"
	}
	if len(c.Reporting.Formats) == 0 {
		c.Reporting.Formats = []string{"txt", "json"}
	}
}

func (c *Config) Validate() error {
	switch c.Global.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Global.LogFormat)
	}
	for _, sev := range c.Scanners.FailOn {
		if !sev.Valid() {
			return fmt.Errorf("invalid fail_on severity: %s", sev)
		}
	}
	if c.Dedup.BucketWidth < 1 {
		return fmt.Errorf("dedup bucket width must be >= 1")
	}
	for _, format := range c.Reporting.Formats {
		switch format {
		case "txt", "json", "csv":
		default:
			return fmt.Errorf("invalid report format: %s", format)
		}
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
