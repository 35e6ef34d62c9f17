// Package trace provides togglable, low-overhead tracing for the
// consensus and replication lifecycle: which target(s) are worth the
// cost of logging is a runtime decision, not a build-time one, since a
// leader under investigation can't be restarted with a different log
// level without losing the quorum state that made it interesting.
package trace

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

var (
	logger  = newLogger()
	current atomic.Int32
)

func newLogger() *log.Logger {
	return log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds|log.Lshortfile)
}

// Target is a tracing target. Targets are a bitmask so a caller can enable
// several at once, e.g. Consensus|Replication.
type Target int32

const (
	// Consensus traces a leader's round lifecycle: elections, proposals,
	// and quorum commits.
	Consensus Target = 1 << iota

	// Replication traces one replica's push queue: backoff, rejection,
	// and state transitions.
	Replication

	// Storage traces ref and pack storage operations (loose ref writes,
	// tree rebuilds, block cache eviction).
	Storage

	// Performance traces timing of expensive operations (pack scans,
	// tree diffs) regardless of which subsystem they belong to.
	Performance
)

// SetTarget sets the tracing targets.
func SetTarget(target Target) {
	current.Store(int32(target))
}

// SetLogger sets the logger to use for tracing.
func SetLogger(l *log.Logger) {
	logger = l
}

// Print prints the given message only if the target is enabled.
func (t Target) Print(args ...any) {
	if t.Enabled() {
		logger.Output(2, fmt.Sprint(args...)) // nolint: errcheck
	}
}

// Printf prints the given message only if the target is enabled.
func (t Target) Printf(format string, args ...any) {
	if t.Enabled() {
		logger.Output(2, fmt.Sprintf(format, args...)) // nolint: errcheck
	}
}

// Enabled returns true if the target is enabled.
func (t Target) Enabled() bool {
	return int32(t)&current.Load() != 0
}

// GetTarget returns the current tracing target.
func GetTarget() Target {
	return Target(current.Load())
}
