// Package trend keeps the running temperature average shown as an arrow next
// to the reading.
package trend

import (
	"sync"
	"time"
)

// Direction of the current reading relative to the running average.
type Direction int

const (
	Down   Direction = -1
	Steady Direction = 0
	Up     Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "steady"
	}
}

// Tracker accumulates samples and restarts the average once the samples span
// more than the reset interval.
type Tracker struct {
	mu            sync.Mutex
	pollInterval  time.Duration
	resetInterval time.Duration
	sum           float64
	count         int
	last          float64
}

// New returns a Tracker. resetInterval <= 0 means the average never resets.
func New(pollInterval, resetInterval time.Duration) *Tracker {
	return &Tracker{pollInterval: pollInterval, resetInterval: resetInterval}
}

// Add records a sample and returns the direction of that sample against the
// average that includes it.
func (t *Tracker) Add(v float64) Direction {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addLocked(v)
	return t.directionLocked()
}

func (t *Tracker) addLocked(v float64) {
	if t.resetInterval > 0 && time.Duration(t.count)*t.pollInterval > t.resetInterval {
		t.sum = 0
		t.count = 0
	}
	t.sum += v
	t.count++
	t.last = v
}

// Seed replays stored samples, oldest first, through the same reset rule as Add.
func (t *Tracker) Seed(samples []float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, v := range samples {
		t.addLocked(v)
	}
}

// Average returns the running average, or 0 with no samples.
func (t *Tracker) Average() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 {
		return 0
	}
	return t.sum / float64(t.count)
}

// Direction compares the latest sample with the average.
func (t *Tracker) Direction() Direction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.directionLocked()
}

func (t *Tracker) directionLocked() Direction {
	if t.count == 0 {
		return Steady
	}
	avg := t.sum / float64(t.count)
	switch {
	case t.last < avg:
		return Down
	case t.last > avg:
		return Up
	default:
		return Steady
	}
}

// Count returns the number of samples in the current averaging window.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
