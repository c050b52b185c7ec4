// Package degraded decides whether the bot is healthy enough to trust what
// the display shows.
package degraded

import (
	"time"

	"github.com/kjstillabower/weatherbot/internal/traffic"
)

// stalePolls is how many poll intervals may pass without a success.
const stalePolls = 3

// Reasons reported by Evaluate.
const (
	ReasonNone      = ""
	ReasonErrorRate = "error_rate"
	ReasonNoSuccess = "no_recent_success"
)

// Policy holds the thresholds from configuration.
type Policy struct {
	Window       time.Duration // error-rate window
	ErrorPct     int           // degraded when errors*100/total exceeds this
	PollInterval time.Duration
	StartedAt    time.Time
}

// Status is the outcome of one evaluation.
type Status struct {
	Degraded    bool
	Reason      string
	Errors      int
	Total       int
	LastSuccess time.Time
}

// RecordSuccess records a successful poll.
func RecordSuccess() {
	traffic.RecordSuccess()
}

// RecordError records a failed poll.
func RecordError() {
	traffic.RecordError()
}

// Evaluate checks the recorded poll outcomes against p at time now.
func Evaluate(p Policy, now time.Time) Status {
	errs, total := traffic.ErrorRate(p.Window)
	return evaluate(p, now, errs, total, traffic.LastSuccess())
}

func evaluate(p Policy, now time.Time, errs, total int, last time.Time) Status {
	st := Status{Errors: errs, Total: total, LastSuccess: last}
	if total > 0 && errs*100/total > p.ErrorPct {
		st.Degraded = true
		st.Reason = ReasonErrorRate
		return st
	}
	if p.PollInterval > 0 {
		since := last
		if since.IsZero() {
			since = p.StartedAt
		}
		if !since.IsZero() && now.Sub(since) > stalePolls*p.PollInterval {
			st.Degraded = true
			st.Reason = ReasonNoSuccess
		}
	}
	return st
}

// Reset clears all recorded data. For tests only.
func Reset() {
	traffic.Reset()
}
