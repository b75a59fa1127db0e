package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/aird/internal/config"
	"github.com/dokzlo13/aird/internal/eventbus"
	"github.com/dokzlo13/aird/internal/ledger"
	"github.com/dokzlo13/aird/internal/poller"
)

// PollService wraps the device poller and related periodic tasks.
type PollService struct {
	cfg    *config.Config
	Poller *poller.Poller
	ledger *ledger.Ledger
}

// NewPollService creates a new PollService. l may be nil when the ledger
// is disabled.
func NewPollService(cfg *config.Config, source poller.Source, target poller.Target, bus *eventbus.Bus, l *ledger.Ledger) (*PollService, error) {
	p, err := poller.New(source, target, poller.Config{
		Interval:   cfg.Poll.Interval.Duration(),
		MinBackoff: cfg.Poll.MinBackoff.Duration(),
		MaxBackoff: cfg.Poll.MaxBackoff.Duration(),
		Multiplier: cfg.Poll.Multiplier,
	}, poller.WithObserver(func(res poller.Result) {
		bus.Publish(eventbus.Event{Type: eventbus.EventPoll, At: time.Now(), Payload: res})
	}))
	if err != nil {
		return nil, err
	}

	return &PollService{cfg: cfg, Poller: p, ledger: l}, nil
}

// Start begins polling and ledger cleanup.
func (s *PollService) Start(ctx context.Context) error {
	if err := s.Poller.Start(ctx); err != nil {
		return err
	}
	if s.ledger != nil {
		go s.runLedgerCleanup(ctx)
	}
	return nil
}

// Stop shuts the poll scheduler down.
func (s *PollService) Stop() {
	if err := s.Poller.Stop(); err != nil {
		log.Warn().Err(err).Msg("Poller shutdown error")
	}
}

// runLedgerCleanup periodically cleans up old ledger entries.
func (s *PollService) runLedgerCleanup(ctx context.Context) {
	retention := s.cfg.Ledger.Retention.Duration()
	interval := s.cfg.Ledger.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}
