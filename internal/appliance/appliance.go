// Package appliance binds one device's state store, command coordinator,
// capabilities and optional humidity control into a single handle.
package appliance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/aird/internal/autocontrol"
	"github.com/dokzlo13/aird/internal/command"
	"github.com/dokzlo13/aird/internal/debounce"
	"github.com/dokzlo13/aird/internal/device"
	"github.com/dokzlo13/aird/internal/state"
)

// Options configures an Appliance.
type Options struct {
	Sink           command.Sink
	DebounceWindow time.Duration
	CommandTimeout time.Duration

	Control        autocontrol.Settings
	ControlEnabled bool

	CommandObservers []command.Observer
	AdjustObservers  []func(autocontrol.Adjustment)

	// Clock replaces time.Now in the coordinator and control loop.
	Clock func() time.Time
}

// Appliance is one bound device.
type Appliance struct {
	id    string
	name  string
	model device.Model
	caps  device.Capabilities

	store *state.Store
	cmd   *command.Coordinator
	loop  *autocontrol.Loop

	debounceWindow time.Duration
	commandTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	controls map[device.Key]*debounce.Debouncer[device.Value]
	unsubs   []func()
	closed   bool
}

// New binds an appliance from its first known snapshot. Capabilities are
// detected here once and never re-scanned.
func New(id, name string, model device.Model, initial device.Snapshot, opts Options) *Appliance {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = 500 * time.Millisecond
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Appliance{
		id:             id,
		name:           name,
		model:          model,
		caps:           device.DetectCapabilities(initial.State, initial.Sensors),
		store:          state.New(id, initial),
		debounceWindow: opts.DebounceWindow,
		commandTimeout: opts.CommandTimeout,
		ctx:            ctx,
		cancel:         cancel,
		controls:       make(map[device.Key]*debounce.Debouncer[device.Value]),
	}

	cmdOpts := make([]command.Option, 0, len(opts.CommandObservers)+1)
	for _, fn := range opts.CommandObservers {
		cmdOpts = append(cmdOpts, command.WithObserver(fn))
	}
	if opts.Clock != nil {
		cmdOpts = append(cmdOpts, command.WithClock(opts.Clock))
	}
	a.cmd = command.New(a.store, opts.Sink, cmdOpts...)

	if model.TracksHumidity() && a.caps.FanSpeed {
		loopOpts := make([]autocontrol.Option, 0, len(opts.AdjustObservers)+1)
		for _, fn := range opts.AdjustObservers {
			loopOpts = append(loopOpts, autocontrol.WithObserver(fn))
		}
		if opts.Clock != nil {
			loopOpts = append(loopOpts, autocontrol.WithClock(opts.Clock))
		}
		a.loop = autocontrol.New(id, model, opts.Control, a.store, a.cmd, opts.ControlEnabled, loopOpts...)
		a.unsubs = append(a.unsubs, a.store.Subscribe(func(state.Change) {
			a.loop.Trigger()
		}))
	}

	log.Info().
		Str("device", id).
		Str("name", name).
		Str("model", model.Name).
		Interface("capabilities", a.caps).
		Bool("humidity_control", a.loop != nil).
		Msg("Appliance bound")
	return a
}

func (a *Appliance) ID() string                        { return a.id }
func (a *Appliance) Name() string                      { return a.name }
func (a *Appliance) Model() device.Model               { return a.model }
func (a *Appliance) Capabilities() device.Capabilities { return a.caps }
func (a *Appliance) Snapshot() device.Snapshot         { return a.store.Snapshot() }
func (a *Appliance) Cycles() uint64                    { return a.store.Cycles() }

// Subscribe registers fn for every applied merge cycle.
func (a *Appliance) Subscribe(fn state.Listener) (unsubscribe func()) {
	return a.store.Subscribe(fn)
}

// RequestMerge queues a reported delta. It never blocks.
func (a *Appliance) RequestMerge(delta device.Delta) {
	a.store.RequestMerge(delta)
}

// SetAttribute issues a manual write and waits for its resolution.
func (a *Appliance) SetAttribute(ctx context.Context, key device.Key, value device.Value) (command.Result, error) {
	return a.cmd.SetAttribute(ctx, key, value)
}

// Commands returns the appliance's coordinator.
func (a *Appliance) Commands() *command.Coordinator { return a.cmd }

// HumidityControl returns the control loop, or nil when the model has no
// humidity setpoint or the device has no fan speed.
func (a *Appliance) HumidityControl() *autocontrol.Loop { return a.loop }

// Control returns the debounced writer for key. Bursts of values (slider
// drags) collapse into one SetAttribute with the last value.
func (a *Appliance) Control(key device.Key) *debounce.Debouncer[device.Value] {
	a.mu.Lock()
	defer a.mu.Unlock()

	if d, ok := a.controls[key]; ok {
		return d
	}
	d := debounce.New(a.debounceWindow, func(v device.Value) {
		ctx, cancel := context.WithTimeout(a.ctx, a.commandTimeout)
		defer cancel()

		res, err := a.cmd.SetAttribute(ctx, key, v)
		if err != nil {
			log.Error().Err(err).
				Str("device", a.id).
				Str("key", string(key)).
				Msg("Debounced write failed")
			return
		}
		log.Debug().
			Str("device", a.id).
			Str("key", string(key)).
			Str("outcome", res.Outcome.String()).
			Msg("Debounced write resolved")
	})
	if a.closed {
		d.Stop()
	}
	a.controls[key] = d
	return d
}

// PendingControls lists the keys whose debounced writes have not fired yet, sorted.
func (a *Appliance) PendingControls() []device.Key {
	a.mu.Lock()
	defer a.mu.Unlock()

	var keys []device.Key
	for k, d := range a.controls {
		if d.Pending() {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Run drives the humidity loop, if any, until ctx is cancelled.
func (a *Appliance) Run(ctx context.Context) error {
	if a.loop == nil {
		<-ctx.Done()
		return nil
	}
	return a.loop.Run(ctx)
}

// Close stops pending debounced writes and abandons in-flight ones.
func (a *Appliance) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true

	for _, d := range a.controls {
		d.Stop()
	}
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.cancel()
}
