// Package poller pulls device state from the remote source on a schedule
// and hands the reports to the appliance registry.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/aird/internal/device"
)

// ErrNoSource is returned by New when no remote source is configured.
var ErrNoSource = errors.New("poller: no remote state source")

// Source pulls the current state of the given devices.
type Source interface {
	Pull(ctx context.Context, ids []string) ([]device.Report, error)
}

// Target receives pulled reports. Implemented by appliance.Registry.
type Target interface {
	IDs() []string
	Apply(reports []device.Report)
}

// Config contains poll interval and failure backoff settings.
type Config struct {
	Interval   time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Multiplier float64
}

// DefaultConfig returns sensible defaults for polling.
func DefaultConfig() Config {
	return Config{
		Interval:   30 * time.Second,
		MinBackoff: 30 * time.Second,
		MaxBackoff: 10 * time.Minute,
		Multiplier: 2.0,
	}
}

// Result describes one completed pull.
type Result struct {
	Reports  int
	Err      error
	Duration time.Duration
	Failures int
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithObserver registers fn for every completed pull.
func WithObserver(fn func(Result)) Option {
	return func(p *Poller) { p.observers = append(p.observers, fn) }
}

// Poller drives Source.Pull from a gocron job. After a failure, scheduled
// runs are skipped until the current backoff elapses; the backoff grows by
// Multiplier up to MaxBackoff and resets on the next success.
type Poller struct {
	source    Source
	target    Target
	config    Config
	now       func() time.Time
	observers []func(Result)

	scheduler gocron.Scheduler
	ctx       context.Context

	mu          sync.Mutex
	failures    int
	backoff     time.Duration
	nextAttempt time.Time
}

// New creates a poller. It does not start polling until Start is called.
func New(source Source, target Target, config Config, opts ...Option) (*Poller, error) {
	if source == nil {
		return nil, ErrNoSource
	}
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.MinBackoff <= 0 {
		config.MinBackoff = defaults.MinBackoff
	}
	if config.MaxBackoff < config.MinBackoff {
		config.MaxBackoff = config.MinBackoff
	}
	if config.Multiplier < 1 {
		config.Multiplier = defaults.Multiplier
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	p := &Poller{
		source:    source,
		target:    target,
		config:    config,
		now:       time.Now,
		scheduler: s,
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start schedules the poll job, running the first pull immediately.
// Pulls stop when ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx = ctx

	_, err := p.scheduler.NewJob(
		gocron.DurationJob(p.config.Interval),
		gocron.NewTask(p.tick),
		gocron.WithName("device-poll"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create poll job: %w", err)
	}

	log.Info().
		Dur("interval", p.config.Interval).
		Strs("devices", p.target.IDs()).
		Msg("Poller started")
	p.scheduler.Start()
	return nil
}

// Stop gracefully shuts down the scheduler.
func (p *Poller) Stop() error {
	log.Info().Msg("Poller stopping")
	return p.scheduler.Shutdown()
}

func (p *Poller) tick() {
	if p.ctx.Err() != nil {
		return
	}
	if wait := p.backingOff(); wait > 0 {
		log.Debug().Dur("remaining", wait).Msg("Poll skipped during backoff")
		return
	}
	_ = p.Poll(p.ctx)
}

func (p *Poller) backingOff() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nextAttempt.IsZero() {
		return 0
	}
	if wait := p.nextAttempt.Sub(p.now()); wait > 0 {
		return wait
	}
	return 0
}

// Poll pulls once regardless of backoff and applies the reports.
func (p *Poller) Poll(ctx context.Context) error {
	start := p.now()
	ids := p.target.IDs()
	reports, err := p.source.Pull(ctx, ids)
	res := Result{Reports: len(reports), Err: err, Duration: p.now().Sub(start)}

	if err != nil {
		res.Failures = p.recordFailure(err)
		p.notify(res)
		return err
	}

	p.mu.Lock()
	if p.failures > 0 {
		log.Info().Int("failures", p.failures).Msg("Poll recovered")
	}
	p.failures = 0
	p.backoff = 0
	p.nextAttempt = time.Time{}
	p.mu.Unlock()

	p.target.Apply(reports)
	log.Debug().Int("reports", len(reports)).Dur("took", res.Duration).Msg("Poll completed")
	p.notify(res)
	return nil
}

func (p *Poller) recordFailure(err error) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures++
	if p.backoff == 0 {
		p.backoff = p.config.MinBackoff
	} else {
		// Calculate next backoff with multiplier, capped at max
		next := time.Duration(float64(p.backoff) * p.config.Multiplier)
		if next > p.config.MaxBackoff {
			next = p.config.MaxBackoff
		}
		p.backoff = next
	}
	p.nextAttempt = p.now().Add(p.backoff)

	log.Warn().
		Err(err).
		Int("failures", p.failures).
		Dur("backoff", p.backoff).
		Msg("Poll failed, backing off")
	return p.failures
}

func (p *Poller) notify(res Result) {
	for _, fn := range p.observers {
		fn(res)
	}
}

// Backoff returns the current backoff and the consecutive failure count.
func (p *Poller) Backoff() (time.Duration, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backoff, p.failures
}
