package models

import "errors"

// Engine error taxonomy. Adapter-level failures are absorbed into scan
// metadata; the rest propagate to callers.
var (
	// ErrAdapterUnavailable means the scanner binary is not installed. The
	// adapter is skipped, never fatal on its own.
	ErrAdapterUnavailable = errors.New("scanner binary not available")

	// ErrAdapterTimeout means a per-adapter or overall deadline elapsed.
	// Partial results from completed adapters are kept.
	ErrAdapterTimeout = errors.New("scanner timed out")

	// ErrOutputUnparsable means the scanner produced no usable output.
	ErrOutputUnparsable = errors.New("scanner output unparsable")

	// ErrNoAdaptersRan means no adapter could run at all; the orchestration
	// aborts and no result is persisted.
	ErrNoAdaptersRan = errors.New("no scanners could run")

	// ErrStoreCorrupt means the persisted result file cannot be decoded. It is
	// surfaced to the caller, never silently replaced.
	ErrStoreCorrupt = errors.New("findings store corrupt")

	// ErrFindingNotFound is returned by resource queries for unknown ids.
	ErrFindingNotFound = errors.New("finding not found")

	// ErrNoScanYet is returned when triage/fix tools run before any scan.
	ErrNoScanYet = errors.New("no scan has been run yet")
)
