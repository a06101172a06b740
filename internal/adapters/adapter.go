package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/vulnlynx/pkg/models"
)

// Config carries adapter-specific flags from configuration through to a
// single Run invocation.
type Config struct {
	Rulesets   []string
	Exclusions []string
	ExtraArgs  []string
}

// RawOutput is the captured output of one scanner subprocess. A nonzero exit
// code with parseable stdout is normal for scanners that exit 1 when findings
// exist; callers decide based on Normalize.
type RawOutput struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Adapter converts one external scanner's native output into normalized
// findings. Implementations are registered at compile time; there is no
// runtime plugin loading.
type Adapter interface {
	Name() string

	// Probe reports whether the scanner binary can be invoked. A failed probe
	// means the adapter is skipped, not that the scan fails.
	Probe() error

	// Run invokes the scanner subprocess against target. It must honor ctx
	// cancellation by killing the scanner's process group.
	Run(ctx context.Context, target string, config Config) (*RawOutput, error)

	// Normalize maps scanner-native output into findings. Empty or
	// undecodable output is ErrOutputUnparsable.
	Normalize(raw *RawOutput) ([]models.Finding, error)
}

type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// DefaultRegistry returns a registry with every built-in adapter registered.
func DefaultRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	r := NewRegistry()
	r.Register(NewSemgrepAdapter(logger))
	r.Register(NewBanditAdapter(logger))
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available returns the names of adapters whose Probe succeeds.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, a := range r.adapters {
		if a.Probe() == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func probeBinary(binary string) error {
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("%w: %s", models.ErrAdapterUnavailable, binary)
	}
	return nil
}

// runScanner executes a scanner subprocess in its own process group and
// captures its output. On ctx cancellation the whole group is killed, so
// scanner-spawned children do not outlive the scan.
func runScanner(ctx context.Context, logger *logrus.Logger, binary string, args []string) (*RawOutput, error) {
	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debugf("Running %s %v", binary, args)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		return nil, fmt.Errorf("%w: %s", models.ErrAdapterTimeout, binary)
	case err := <-done:
		exitCode := 0
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return nil, fmt.Errorf("run %s: %w", binary, err)
			}
			exitCode = exitErr.ExitCode()
		}
		return &RawOutput{
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			ExitCode: exitCode,
		}, nil
	}
}
