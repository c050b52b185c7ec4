package bot

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// alignedSchedule fires on wall-clock multiples of the interval (unix seconds
// modulo interval == 0), so every bot polling every 180s lands on the same second.
type alignedSchedule struct {
	interval int64 // seconds
}

// Next returns the first aligned instant strictly after t.
func (s alignedSchedule) Next(t time.Time) time.Time {
	secs := t.Unix()
	return time.Unix(secs-secs%s.interval+s.interval, 0).In(t.Location())
}

// NewSchedule returns the poll schedule: the cron expression when expr is
// set (standard five fields or descriptors like "@every 5m"), otherwise
// interval aligned to the wall clock.
func NewSchedule(expr string, interval time.Duration) (cron.Schedule, error) {
	if expr != "" {
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("parse poll schedule %q: %w", expr, err)
		}
		return sched, nil
	}
	secs := int64(interval / time.Second)
	if secs < 1 {
		return nil, fmt.Errorf("poll interval %v is shorter than a second", interval)
	}
	return alignedSchedule{interval: secs}, nil
}
