package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/bl4ck0w1/vulnlynx/internal/adapters"
	"github.com/bl4ck0w1/vulnlynx/pkg/models"
	"github.com/bl4ck0w1/vulnlynx/pkg/utils"
)

const (
	DefaultAdapterTimeout = 120 * time.Second
	DefaultScanTimeout    = 600 * time.Second
)

// ResultStore is the persistence boundary the orchestrator writes completed
// results through.
type ResultStore interface {
	Save(result *models.ScanResult) error
}

type Config struct {
	AdapterTimeout time.Duration
	ScanTimeout    time.Duration
	// LaunchRate throttles subprocess spawns per second so a wide scanner set
	// does not stampede the host.
	LaunchRate     float64
	AdapterOptions map[string]models.AdapterOptions
}

func (c *Config) applyDefaults() {
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = DefaultAdapterTimeout
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = DefaultScanTimeout
	}
	if c.LaunchRate <= 0 {
		c.LaunchRate = 4
	}
}

// Orchestrator fans a scan out across the requested adapters, merges and
// deduplicates their findings, computes the pass/fail verdict, and persists
// the result. It exclusively owns ScanResult creation.
type Orchestrator struct {
	registry *adapters.Registry
	store    ResultStore
	dedup    *Deduplicator
	metrics  *utils.MetricsCollector
	logger   *logrus.Logger
	config   Config
}

func NewOrchestrator(registry *adapters.Registry, store ResultStore, dedup *Deduplicator, metrics *utils.MetricsCollector, config Config, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	config.applyDefaults()
	if dedup == nil {
		dedup = NewDeduplicator(DefaultBucketWidth, logger)
	}
	return &Orchestrator{
		registry: registry,
		store:    store,
		dedup:    dedup,
		metrics:  metrics,
		logger:   logger,
		config:   config,
	}
}

type adapterOutcome struct {
	scanner  string
	findings []models.Finding
	err      error
}

// RunScan executes the requested scanners concurrently against target,
// deduplicates the merged findings, and persists the result atomically.
// Individual adapter failures are absorbed into the result metadata; the only
// fatal condition is that no adapter could run at all.
func (o *Orchestrator) RunScan(ctx context.Context, target string, scanners []string, failOn []models.Severity) (*models.ScanResult, error) {
	start := time.Now()

	metadata := models.ScanMetadata{Errors: make(map[string]string)}
	runnable := o.resolveScanners(scanners, &metadata)
	if len(runnable) == 0 {
		if o.metrics != nil {
			o.metrics.ScansTotal.WithLabelValues("aborted").Inc()
		}
		return nil, fmt.Errorf("%w: target %s", models.ErrNoAdaptersRan, target)
	}

	o.logger.Infof("Starting scan of %s with scanners %v", target, runnable)

	scanCtx, cancel := context.WithTimeout(ctx, o.config.ScanTimeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(o.config.LaunchRate), 1)
	sem := semaphore.NewWeighted(int64(len(runnable)))

	var (
		mu       sync.Mutex
		outcomes []adapterOutcome
	)

	var g errgroup.Group
	for _, name := range runnable {
		adapter, _ := o.registry.Get(name)
		g.Go(func() error {
			outcome := o.runAdapter(scanCtx, adapter, target, limiter, sem)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var raw []models.Finding
	for _, outcome := range outcomes {
		if outcome.err != nil {
			metadata.Errors[outcome.scanner] = outcome.err.Error()
			continue
		}
		raw = append(raw, outcome.findings...)
	}

	findings := o.dedup.Dedup(raw, target)
	if o.metrics != nil {
		o.metrics.DedupMerged.Add(float64(len(raw) - len(findings)))
	}

	counts := models.CountBySeverity(findings)
	metadata.DurationMS = time.Since(start).Milliseconds()

	result := &models.ScanResult{
		Timestamp:    time.Now().UTC(),
		Target:       target,
		ScannersUsed: runnable,
		Findings:     findings,
		BySeverity:   counts,
		ShouldFail:   shouldFail(counts, failOn),
		Metadata:     metadata,
	}

	if o.store != nil {
		if err := o.store.Save(result); err != nil {
			return nil, fmt.Errorf("persist scan result: %w", err)
		}
	}

	o.recordScanMetrics(result, time.Since(start))
	o.logger.Infof("Scan of %s completed: %d findings (%d raw) from %d scanners in %s",
		target, len(findings), len(raw), len(runnable), utils.HumanizeDuration(time.Since(start)))

	return result, nil
}

// resolveScanners turns the request into the list of adapters that will run.
// An empty request means every available adapter. Unavailable adapters are
// skipped and noted in metadata, never treated as an error.
func (o *Orchestrator) resolveScanners(requested []string, metadata *models.ScanMetadata) []string {
	if len(requested) == 0 {
		available := o.registry.Available()
		for _, name := range o.registry.Names() {
			if !utils.StringInSlice(name, available) {
				metadata.Skipped = append(metadata.Skipped, name)
			}
		}
		return available
	}

	var runnable []string
	for _, name := range requested {
		adapter, ok := o.registry.Get(name)
		if !ok {
			metadata.Errors[name] = "unknown scanner"
			continue
		}
		if err := adapter.Probe(); err != nil {
			metadata.Skipped = append(metadata.Skipped, name)
			o.logger.Warnf("Scanner %s unavailable, skipping: %v", name, err)
			continue
		}
		if !utils.StringInSlice(name, runnable) {
			runnable = append(runnable, name)
		}
	}
	sort.Strings(runnable)
	return runnable
}

func (o *Orchestrator) runAdapter(ctx context.Context, adapter adapters.Adapter, target string, limiter *rate.Limiter, sem *semaphore.Weighted) adapterOutcome {
	name := adapter.Name()

	if err := sem.Acquire(ctx, 1); err != nil {
		return adapterOutcome{scanner: name, err: fmt.Errorf("%w: %s", models.ErrAdapterTimeout, name)}
	}
	defer sem.Release(1)

	if err := limiter.Wait(ctx); err != nil {
		return adapterOutcome{scanner: name, err: fmt.Errorf("%w: %s", models.ErrAdapterTimeout, name)}
	}

	adapterCtx, cancel := context.WithTimeout(ctx, o.adapterTimeout(name))
	defer cancel()

	start := time.Now()
	raw, err := adapter.Run(adapterCtx, target, o.adapterConfig(name))
	if o.metrics != nil {
		o.metrics.ObserveAdapter(name, time.Since(start))
	}
	if err != nil {
		o.recordAdapterFailure(name, err)
		return adapterOutcome{scanner: name, err: err}
	}

	findings, err := adapter.Normalize(raw)
	if err != nil {
		o.recordAdapterFailure(name, err)
		return adapterOutcome{scanner: name, err: err}
	}

	o.logger.Infof("Scanner %s finished with %d findings in %s", name, len(findings), utils.HumanizeDuration(time.Since(start)))
	return adapterOutcome{scanner: name, findings: findings}
}

func (o *Orchestrator) adapterTimeout(name string) time.Duration {
	if opts, ok := o.config.AdapterOptions[name]; ok && opts.Timeout > 0 {
		return opts.Timeout
	}
	return o.config.AdapterTimeout
}

func (o *Orchestrator) adapterConfig(name string) adapters.Config {
	opts := o.config.AdapterOptions[name]
	return adapters.Config{
		Rulesets:   opts.Rulesets,
		Exclusions: opts.Exclusions,
		ExtraArgs:  opts.ExtraArgs,
	}
}

func (o *Orchestrator) recordAdapterFailure(name string, err error) {
	reason := "error"
	switch {
	case errors.Is(err, models.ErrAdapterTimeout):
		reason = "timeout"
	case errors.Is(err, models.ErrOutputUnparsable):
		reason = "unparsable"
	case errors.Is(err, models.ErrAdapterUnavailable):
		reason = "unavailable"
	}
	o.logger.Errorf("Scanner %s failed (%s): %v", name, reason, err)
	if o.metrics != nil {
		o.metrics.AdapterFailures.WithLabelValues(name, reason).Inc()
	}
}

func (o *Orchestrator) recordScanMetrics(result *models.ScanResult, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.ScansTotal.WithLabelValues("completed").Inc()
	o.metrics.ScanDuration.Observe(elapsed.Seconds())
	for sev, count := range result.BySeverity {
		o.metrics.FindingsTotal.WithLabelValues(string(sev)).Set(float64(count))
	}
}

func shouldFail(counts map[models.Severity]int, failOn []models.Severity) bool {
	for _, sev := range failOn {
		if counts[sev] > 0 {
			return true
		}
	}
	return false
}
