// Package autocontrol runs a hysteresis controller that nudges an
// appliance's fan/mist level toward its humidity setpoint.
package autocontrol

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/aird/internal/command"
	"github.com/dokzlo13/aird/internal/device"
)

// Commander issues attribute writes. Implemented by command.Coordinator.
type Commander interface {
	Set(ctx context.Context, origin command.Origin, key device.Key, value device.Value) (command.Result, error)
	LastManual() time.Time
}

// Snapshotter exposes the current appliance view. Implemented by state.Store.
type Snapshotter interface {
	Snapshot() device.Snapshot
}

// Settings configures a Loop.
type Settings struct {
	Interval       time.Duration
	Thresholds     Thresholds
	AdjustCooldown time.Duration
	ManualCooldown time.Duration
}

// Adjustment is reported after every automatic write the loop proposed.
type Adjustment struct {
	DeviceID string
	From     int
	To       int
	Humidity float64
	Setpoint float64
	Outcome  command.Outcome
	At       time.Time
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithObserver registers fn for every automatic adjustment.
func WithObserver(fn func(Adjustment)) Option {
	return func(l *Loop) { l.observers = append(l.observers, fn) }
}

// Loop evaluates one appliance on a ticker and whenever Trigger is called.
type Loop struct {
	deviceID  string
	model     device.Model
	settings  Settings
	source    Snapshotter
	cmd       Commander
	now       func() time.Time
	observers []func(Adjustment)

	enabled atomic.Bool
	trigger chan struct{}

	mu         sync.Mutex
	lastAdjust time.Time
}

// New creates a Loop. It starts disabled unless enabled is true.
func New(deviceID string, model device.Model, settings Settings, source Snapshotter, cmd Commander, enabled bool, opts ...Option) *Loop {
	if settings.Interval <= 0 {
		settings.Interval = 30 * time.Second
	}
	l := &Loop{
		deviceID: deviceID,
		model:    model,
		settings: settings,
		source:   source,
		cmd:      cmd,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.enabled.Store(enabled)
	return l
}

// SetEnabled switches automatic tracking on or off.
func (l *Loop) SetEnabled(on bool) {
	if l.enabled.Swap(on) != on {
		log.Info().Str("device", l.deviceID).Bool("enabled", on).Msg("Humidity control toggled")
		if on {
			l.Trigger()
		}
	}
}

// Enabled reports whether automatic tracking is on.
func (l *Loop) Enabled() bool { return l.enabled.Load() }

// Trigger requests an evaluation without waiting for the ticker. It never blocks.
func (l *Loop) Trigger() {
	select {
	case l.trigger <- struct{}{}:
	default:
		// Already triggered
	}
}

// Run evaluates until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().
		Str("device", l.deviceID).
		Dur("interval", l.settings.Interval).
		Msg("Humidity control started")

	ticker := time.NewTicker(l.settings.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("device", l.deviceID).Msg("Humidity control stopping")
			return nil
		case <-l.trigger:
			l.evaluateLogged(ctx)
		case <-ticker.C:
			l.evaluateLogged(ctx)
		}
	}
}

func (l *Loop) evaluateLogged(ctx context.Context) {
	if _, err := l.Evaluate(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("device", l.deviceID).Msg("Humidity control evaluation failed")
	}
}

// Evaluate runs one control step and returns what was decided. A non-hold
// decision has already been proposed when Evaluate returns.
func (l *Loop) Evaluate(ctx context.Context) (Decision, error) {
	if !l.Enabled() {
		return Decision{Reason: "disabled"}, nil
	}

	now := l.now()
	if last := l.cmd.LastManual(); !last.IsZero() && now.Sub(last) < l.settings.ManualCooldown {
		return Decision{Reason: "manual_cooldown"}, nil
	}
	l.mu.Lock()
	last := l.lastAdjust
	l.mu.Unlock()
	if !last.IsZero() && now.Sub(last) < l.settings.AdjustCooldown {
		return Decision{Reason: "adjust_cooldown"}, nil
	}

	d := Decide(l.source.Snapshot(), l.model, l.settings.Thresholds)
	if d.Action == ActionHold {
		log.Debug().
			Str("device", l.deviceID).
			Str("reason", d.Reason).
			Float64("humidity", d.Humidity).
			Float64("setpoint", d.Setpoint).
			Msg("Humidity control holding")
		return d, nil
	}

	// Counts as an adjustment even if rejected, so a refusing device is not
	// asked again every tick.
	l.mu.Lock()
	l.lastAdjust = now
	l.mu.Unlock()

	res, err := l.cmd.Set(ctx, command.OriginAuto, device.KeyFanSpeed, device.Number(float64(d.To)))
	if err != nil {
		return d, err
	}

	log.Info().
		Str("device", l.deviceID).
		Str("action", d.Action.String()).
		Int("from", d.From).
		Int("to", d.To).
		Float64("humidity", d.Humidity).
		Float64("setpoint", d.Setpoint).
		Str("outcome", res.Outcome.String()).
		Msg("Humidity control adjusted level")

	adj := Adjustment{
		DeviceID: l.deviceID,
		From:     d.From,
		To:       d.To,
		Humidity: d.Humidity,
		Setpoint: d.Setpoint,
		Outcome:  res.Outcome,
		At:       now,
	}
	for _, fn := range l.observers {
		fn(adj)
	}
	return d, nil
}
