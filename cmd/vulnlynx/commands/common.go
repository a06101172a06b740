package commands

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/bl4ck0w1/vulnlynx/internal/adapters"
	"github.com/bl4ck0w1/vulnlynx/internal/orchestration"
	"github.com/bl4ck0w1/vulnlynx/internal/server"
	"github.com/bl4ck0w1/vulnlynx/internal/storage"
	"github.com/bl4ck0w1/vulnlynx/pkg/models"
	"github.com/bl4ck0w1/vulnlynx/pkg/utils"
)

// engine bundles the wired components every command works against.
type engine struct {
	config       *models.Config
	registry     *adapters.Registry
	store        *storage.Store
	metrics      *utils.MetricsCollector
	orchestrator *orchestration.Orchestrator
	server       *server.Server
	logger       *logrus.Logger
}

// buildConfig materializes the typed config from viper state, so flags, env
// vars, and the config file all land in one place.
func buildConfig() (*models.Config, error) {
	cfg := models.DefaultConfig()

	if v := viper.GetString("data_directory"); v != "" {
		cfg.Global.DataDir = v
		cfg.Storage.ResultsFile = filepath.Join(v, "scan_results.json")
		cfg.Storage.TriageFile = filepath.Join(v, "triage.json")
	}
	if v := viper.GetString("output_directory"); v != "" {
		cfg.Reporting.OutputDir = v
	}
	if v := viper.GetDuration("scan.timeout"); v > 0 {
		cfg.Global.ScanTimeout = v
	}
	if v := viper.GetDuration("scan.adapter_timeout"); v > 0 {
		cfg.Scanners.AdapterTimeout = v
	}
	if v := viper.GetStringSlice("scan.scanners"); len(v) > 0 {
		cfg.Scanners.Default = v
	}
	if v := viper.GetStringSlice("scan.fail_on"); len(v) > 0 {
		cfg.Scanners.FailOn = cfg.Scanners.FailOn[:0]
		for _, raw := range v {
			sev, err := models.ParseSeverity(raw)
			if err != nil {
				return nil, err
			}
			cfg.Scanners.FailOn = append(cfg.Scanners.FailOn, sev)
		}
	}
	if v := viper.GetInt("dedup.bucket_width"); v > 0 {
		cfg.Dedup.BucketWidth = v
	}
	if v := viper.GetString("server.listen_addr"); v != "" {
		cfg.Server.ListenAddr = v
	}
	cfg.Server.EnableMetrics = viper.GetBool("server.enable_metrics")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildEngine() (*engine, error) {
	cfg, err := buildConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logrus.StandardLogger()
	registry := adapters.DefaultRegistry(logger)

	store, err := storage.NewStore(cfg.Storage.ResultsFile, cfg.Storage.TriageFile, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize findings store: %w", err)
	}

	metrics := utils.NewMetricsCollector(true)
	dedup := orchestration.NewDeduplicator(cfg.Dedup.BucketWidth, logger)

	orchestrator := orchestration.NewOrchestrator(registry, store, dedup, metrics, orchestration.Config{
		AdapterTimeout: cfg.Scanners.AdapterTimeout,
		ScanTimeout:    cfg.Global.ScanTimeout,
		LaunchRate:     cfg.Scanners.LaunchRate,
		AdapterOptions: cfg.Scanners.Adapters,
	}, logger)

	srv := server.NewServer(orchestrator, store, registry, cfg, metrics, logger)

	return &engine{
		config:       cfg,
		registry:     registry,
		store:        store,
		metrics:      metrics,
		orchestrator: orchestrator,
		server:       srv,
		logger:       logger,
	}, nil
}
