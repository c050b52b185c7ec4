// Package bot runs the poll loop: fetch conditions on schedule, redraw the
// matrix, and sweep the pulse pixel in between so it is obvious the bot is alive.
package bot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kjstillabower/weatherbot/internal/client"
	"github.com/kjstillabower/weatherbot/internal/degraded"
	"github.com/kjstillabower/weatherbot/internal/display"
	"github.com/kjstillabower/weatherbot/internal/lifecycle"
	"github.com/kjstillabower/weatherbot/internal/models"
	"github.com/kjstillabower/weatherbot/internal/observability"
	"github.com/kjstillabower/weatherbot/internal/trend"
)

// Fetcher returns conditions for a station (service.WeatherService). Current
// may answer from cache; Refresh always asks upstream.
type Fetcher interface {
	Current(ctx context.Context, station string) (models.Observation, error)
	Refresh(ctx context.Context, station string) (models.Observation, error)
}

// HistorySource restores recent observations so the trend survives restarts.
type HistorySource interface {
	Recent(ctx context.Context, station string, scale models.Scale, since time.Time) ([]models.Observation, error)
}

// Options configures a Bot.
type Options struct {
	Station       string
	Scale         models.Scale
	PollInterval  time.Duration
	ResetInterval time.Duration
	PulseDelay    time.Duration
	Schedule      cron.Schedule // nil means aligned to PollInterval
	FeelsLike     bool
	Brightness    display.Brightness
	History       HistorySource // optional
}

// Status is a snapshot of the bot for the status endpoint.
type Status struct {
	Station     string              `json:"station"`
	Observation *models.Observation `json:"observation,omitempty"`
	Condition   models.Condition    `json:"condition,omitempty"`
	WindUnit    string              `json:"windUnit"`
	Trend       string              `json:"trend"`
	Average     float64             `json:"average"`
	Samples     int                 `json:"samples"`
	LastPollAt  time.Time           `json:"lastPollAt,omitzero"`
	NextPollAt  time.Time           `json:"nextPollAt,omitzero"`
	LastError   string              `json:"lastError,omitempty"`
	LastErrorAt time.Time           `json:"lastErrorAt,omitzero"`
	Polls       int                 `json:"polls"`
	Failures    int                 `json:"failures"`
}

// Bot owns the display and the trend state. Run is single-goroutine; Status
// may be called concurrently.
type Bot struct {
	opts     Options
	fetcher  Fetcher
	device   display.Device
	renderer *display.Renderer
	tracker  *trend.Tracker
	schedule cron.Schedule
	logger   *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// lastSampleAt is the fetch time of the newest observation in the trend.
	lastSampleAt time.Time

	mu     sync.RWMutex
	status Status
}

// New returns a Bot drawing on device.
func New(fetcher Fetcher, device display.Device, opts Options, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PulseDelay <= 0 {
		opts.PulseDelay = 50 * time.Millisecond
	}
	sched := opts.Schedule
	if sched == nil {
		s, err := NewSchedule("", opts.PollInterval)
		if err != nil {
			return nil, err
		}
		sched = s
	}
	return &Bot{
		opts:     opts,
		fetcher:  fetcher,
		device:   device,
		renderer: display.NewRenderer(opts.Brightness, opts.FeelsLike),
		tracker:  trend.New(opts.PollInterval, opts.ResetInterval),
		schedule: sched,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
		status:   Status{Station: opts.Station, WindUnit: opts.Scale.WindUnit(), Trend: trend.Steady.String()},
	}, nil
}

// Run polls until ctx is cancelled or a fatal error (invalid API key,
// unknown station) occurs. Other poll failures leave the last frame on the
// display and are retried at the next scheduled poll. The display is blanked
// before Run returns.
func (b *Bot) Run(ctx context.Context) error {
	defer b.blank()

	lifecycle.MarkStarted(b.now())
	b.seed(ctx)
	b.show(b.renderer.Placeholder(b.opts.Scale))

	if err := b.PollOnce(ctx); err != nil && client.IsFatal(err) {
		return err
	}
	next := b.scheduleNext()

	for {
		if ctx.Err() != nil {
			b.logger.Info("poll loop stopping")
			return nil
		}
		if !b.now().Before(next) {
			if err := b.poll(ctx, b.fetcher.Refresh); err != nil && client.IsFatal(err) {
				return err
			}
			next = b.scheduleNext()
		}
		b.pulse(ctx)
	}
}

// PollOnce fetches conditions once, accepting a cached observation, updates
// the trend and redraws. It returns the fetch error, if any, after logging
// and counting it.
func (b *Bot) PollOnce(ctx context.Context) error {
	return b.poll(ctx, b.fetcher.Current)
}

func (b *Bot) poll(ctx context.Context, fetch func(context.Context, string) (models.Observation, error)) error {
	pollID := uuid.NewString()
	ctx = client.WithPollID(ctx, pollID)
	logger := b.logger.With(zap.String("pollId", pollID))
	start := b.now()

	obs, err := fetch(ctx, b.opts.Station)
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; not a poll failure.
			return err
		}
		category := client.CategorizeError(err)
		observability.RecordPollError(string(category))
		degraded.RecordError()
		b.mu.Lock()
		b.status.LastError = err.Error()
		b.status.LastErrorAt = start
		b.status.Polls++
		b.status.Failures++
		b.mu.Unlock()
		if client.IsFatal(err) {
			logger.Error("poll failed", zap.String("category", string(category)), zap.Error(err))
		} else {
			logger.Warn("poll failed, keeping last frame", zap.String("category", string(category)), zap.Error(err))
		}
		return err
	}

	var dir trend.Direction
	if b.newSample(obs) {
		dir = b.tracker.Add(obs.Temperature)
		b.lastSampleAt = obs.FetchedAt
	} else {
		dir = b.tracker.Direction()
		logger.Debug("observation already in trend", zap.Time("fetchedAt", obs.FetchedAt))
	}
	avg := b.tracker.Average()
	b.show(b.renderer.Render(obs, dir))

	observability.RecordObservation(obs, avg, int(dir))
	degraded.RecordSuccess()

	b.mu.Lock()
	o := obs
	b.status.Observation = &o
	b.status.Condition = obs.Category()
	b.status.Trend = dir.String()
	b.status.Average = avg
	b.status.Samples = b.tracker.Count()
	b.status.LastPollAt = start
	b.status.Polls++
	b.mu.Unlock()

	logger.Info("poll",
		zap.String("station", b.opts.Station),
		zap.Float64("temperature", obs.Temperature),
		zap.Float64("feelsLike", obs.FeelsLike),
		zap.Float64("average", avg),
		zap.String("trend", dir.String()),
		zap.Float64("windSpeed", obs.WindSpeed),
		zap.Float64("windGust", obs.WindGust),
		zap.String("windUnit", obs.Scale.WindUnit()),
		zap.String("condition", string(obs.Category())),
		zap.String("conditions", obs.Conditions),
		zap.Bool("cached", obs.Cached),
		zap.Duration("duration", b.now().Sub(start)),
	)
	return nil
}

// newSample reports whether obs is newer than every sample in the trend. A
// cache hit repeats an observation that was already counted, either by an
// earlier poll or by the history seed. Observations without a fetch time are
// always counted.
func (b *Bot) newSample(obs models.Observation) bool {
	return obs.FetchedAt.IsZero() || obs.FetchedAt.After(b.lastSampleAt)
}

// Status returns a copy of the current status.
func (b *Bot) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := b.status
	if st.Observation != nil {
		o := *st.Observation
		st.Observation = &o
	}
	return st
}

func (b *Bot) scheduleNext() time.Time {
	next := b.schedule.Next(b.now())
	b.mu.Lock()
	b.status.NextPollAt = next
	b.mu.Unlock()
	b.logger.Debug("next poll scheduled", zap.Time("at", next))
	return next
}

// pulse runs one sweep of the pulse pixel. It stops early when ctx is done.
func (b *Bot) pulse(ctx context.Context) {
	for _, pos := range display.PulseSequence {
		b.show(b.renderer.Pulse(pos))
		if err := b.sleep(ctx, b.opts.PulseDelay); err != nil {
			return
		}
	}
}

func (b *Bot) seed(ctx context.Context) {
	if b.opts.History == nil || b.opts.ResetInterval <= 0 {
		return
	}
	rows, err := b.opts.History.Recent(ctx, b.opts.Station, b.opts.Scale, b.now().Add(-b.opts.ResetInterval))
	if err != nil {
		b.logger.Warn("could not restore trend from history", zap.Error(err))
		return
	}
	if len(rows) > 0 {
		temps := make([]float64, len(rows))
		for i, r := range rows {
			temps[i] = r.Temperature
		}
		b.tracker.Seed(temps)
		b.lastSampleAt = rows[len(rows)-1].FetchedAt
		b.logger.Info("trend restored from history", zap.Int("samples", len(temps)), zap.Float64("average", b.tracker.Average()))
	}
}

// show pushes f to the device. Write failures (usually a loose header, seen
// as "remote I/O error") are logged and counted; the loop carries on.
func (b *Bot) show(f *display.Frame) {
	if err := b.device.Show(f); err != nil {
		observability.DisplayWritesTotal.WithLabelValues("error").Inc()
		b.logger.Warn("display write failed", zap.Error(err))
		return
	}
	observability.DisplayWritesTotal.WithLabelValues("success").Inc()
}

func (b *Bot) blank() {
	b.show(b.renderer.Clear())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
