// Package lifecycle holds process-wide state the status server reports.
package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	shuttingDown atomic.Bool
	startedAt    atomic.Int64
)

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT is received.
// The health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true once the poll loop has been asked to stop.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// MarkStarted records when the bot began polling.
func MarkStarted(t time.Time) {
	startedAt.Store(t.UnixNano())
}

// StartedAt returns the time passed to MarkStarted, or the zero time.
func StartedAt() time.Time {
	n := startedAt.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
