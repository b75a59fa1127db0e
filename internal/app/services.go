package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/aird/internal/appliance"
	"github.com/dokzlo13/aird/internal/cloud"
	"github.com/dokzlo13/aird/internal/config"
	"github.com/dokzlo13/aird/internal/db"
	"github.com/dokzlo13/aird/internal/eventbus"
	"github.com/dokzlo13/aird/internal/ledger"
	"github.com/dokzlo13/aird/internal/metrics"
	"github.com/dokzlo13/aird/internal/publish"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB      *db.DB
	Ledger  *ledger.Ledger
	Bus     *eventbus.Bus
	Metrics *metrics.PrometheusRecorder

	// Devices
	Cloud    *cloud.Client
	Registry *appliance.Registry

	// High-level services
	Events *EventService
	Poll   *PollService
	HTTP   *HTTPService
	NATS   *publish.NATSPublisher

	runners sync.WaitGroup
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	if cfg.Ledger.Enabled {
		s.Ledger = ledger.New(database.DB)
	}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.Workers, cfg.EventBus.QueueSize)
	s.Metrics = metrics.NewPrometheusRecorder(nil)
	s.Events = NewEventService(s.Bus, s.Ledger, s.Metrics)

	s.Cloud = cloud.NewClient(cfg.Cloud.BaseURL, cfg.Cloud.Token, cfg.Cloud.Timeout.Duration(), cfg.Cloud.RateLimitRPS)
	s.Registry = appliance.NewRegistry(cfg.DeviceIDs(), newBinder(cfg, s.Cloud, s.Bus))

	s.Poll, err = NewPollService(cfg, s.Cloud, s.Registry, s.Bus, s.Ledger)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.HTTP = NewHTTPService(cfg, s.Registry, s.Metrics.Handler())

	if cfg.NATS.Enabled {
		s.NATS, err = publish.Connect(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	s.Events.Start()
	if s.NATS != nil {
		s.NATS.Attach(s.Bus)
	}

	// Appliances bind on their first report, so their control loops
	// start from the bind hook.
	s.Registry.OnBind(func(a *appliance.Appliance) {
		s.runners.Add(1)
		go func() {
			defer s.runners.Done()
			if err := a.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("device", a.ID()).Msg("Appliance loop error")
			}
		}()
	})

	s.HTTP.Start(ctx)
	return s.Poll.Start(ctx)
}

// ResetLedger removes every ledger entry.
func (s *Services) ResetLedger() error {
	return s.DB.Reset()
}

// Stop gracefully stops all services. ctx must already be cancelled so
// appliance loops can exit.
func (s *Services) Stop() error {
	if s.Poll != nil {
		s.Poll.Stop()
	}
	s.runners.Wait()
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Registry != nil {
		s.Registry.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.NATS != nil {
		s.NATS.Close()
	}
	if s.Cloud != nil {
		s.Cloud.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
