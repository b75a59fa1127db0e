package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/aird/internal/config"
)

// App owns the appliance fleet: the poller feeding it, the control loops
// driving it and the surfaces (HTTP, NATS, ledger) reporting on it.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New wires the fleet from cfg. Nothing polls or listens until Start.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

func (a *App) Services() *Services { return a.services }

// Status summarizes the fleet.
type Status struct {
	Configured      int
	Bound           int
	Ready           bool
	HumidityControl bool // default for newly bound humidifiers
	Ledger          bool
	NATS            bool
}

func (a *App) Status() Status {
	st := Status{
		Configured:      len(a.cfg.Devices),
		HumidityControl: a.cfg.Control.Enabled,
		Ledger:          a.services.Ledger != nil,
		NATS:            a.services.NATS != nil,
	}
	if reg := a.services.Registry; reg != nil {
		st.Bound = len(reg.List())
		st.Ready = reg.Ready()
	}
	return st
}

// Start begins polling. Appliances bind as their first report arrives, so
// Bound is usually zero here and grows once the first poll lands.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.services.Start(a.ctx); err != nil {
		a.cancel()
		return err
	}

	st := a.Status()
	log.Info().
		Int("configured", st.Configured).
		Int("bound", st.Bound).
		Bool("humidity_control", st.HumidityControl).
		Dur("control_interval", a.cfg.Control.Interval.Duration()).
		Bool("ledger", st.Ledger).
		Bool("nats", st.NATS).
		Msg("aird started")
	return nil
}

// Stop cancels control loops and pending debounced writes, then releases
// the cloud client, bus and database.
func (a *App) Stop() error {
	st := a.Status()
	log.Info().
		Int("bound", st.Bound).
		Int("unbound", st.Configured-st.Bound).
		Msg("Stopping appliances")

	if a.cancel != nil {
		a.cancel()
	}
	return a.services.Stop()
}

// Wait blocks until the signal context passed to Start is cancelled.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// ResetLedger drops every recorded command and merge.
func (a *App) ResetLedger() error {
	return a.services.ResetLedger()
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Shutdown requested, abandoning in-flight writes")
		cancel()
	}()

	return ctx
}
