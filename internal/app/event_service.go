package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/aird/internal/autocontrol"
	"github.com/dokzlo13/aird/internal/command"
	"github.com/dokzlo13/aird/internal/device"
	"github.com/dokzlo13/aird/internal/eventbus"
	"github.com/dokzlo13/aird/internal/ledger"
	"github.com/dokzlo13/aird/internal/metrics"
	"github.com/dokzlo13/aird/internal/poller"
	"github.com/dokzlo13/aird/internal/state"
)

// EventService subscribes the ledger and metrics to the event bus.
type EventService struct {
	bus     *eventbus.Bus
	ledger  *ledger.Ledger
	metrics metrics.Recorder
}

// NewEventService creates a new EventService. l may be nil when the
// ledger is disabled.
func NewEventService(bus *eventbus.Bus, l *ledger.Ledger, rec metrics.Recorder) *EventService {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &EventService{bus: bus, ledger: l, metrics: rec}
}

// Start registers all handlers.
func (s *EventService) Start() {
	s.bus.Subscribe(eventbus.EventStateChanged, s.onStateChanged)
	s.bus.Subscribe(eventbus.EventCommand, s.onCommand)
	s.bus.Subscribe(eventbus.EventAutoAdjust, s.onAutoAdjust)
	s.bus.Subscribe(eventbus.EventPoll, s.onPoll)
}

func (s *EventService) onStateChanged(e eventbus.Event) {
	change, ok := e.Payload.(state.Change)
	if !ok {
		return
	}
	s.metrics.IncMergeCycle(change.DeviceID)
	for _, sensor := range change.Sensors {
		switch sensor {
		case device.SensorAQI:
			if idx, ok := change.Snapshot.AQI(); ok {
				s.metrics.SetAQI(change.DeviceID, idx)
			}
		case device.SensorHumidity:
			if h, ok := change.Snapshot.Reading(device.SensorHumidity); ok {
				s.metrics.SetHumidity(change.DeviceID, h)
			}
		}
	}
}

func (s *EventService) onCommand(e eventbus.Event) {
	res, ok := e.Payload.(command.Result)
	if !ok {
		return
	}
	s.metrics.ObserveCommand(res.DeviceID, string(res.Key), string(res.Origin), res.Outcome.String(), res.Latency)
	s.append(ledger.FromResult(res))
}

func (s *EventService) onAutoAdjust(e eventbus.Event) {
	adj, ok := e.Payload.(autocontrol.Adjustment)
	if !ok {
		return
	}
	direction := "down"
	if adj.To > adj.From {
		direction = "up"
	}
	s.metrics.IncAutoAdjust(adj.DeviceID, direction)
	s.append(ledger.FromAdjustment(adj))
}

func (s *EventService) onPoll(e eventbus.Event) {
	res, ok := e.Payload.(poller.Result)
	if !ok {
		return
	}
	s.metrics.ObservePoll(res.Duration, res.Err)
}

func (s *EventService) append(entry ledger.Entry) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Append(entry); err != nil {
		log.Error().Err(err).
			Str("device", entry.DeviceID).
			Str("type", string(entry.Type)).
			Msg("Failed to append ledger entry")
	}
}
