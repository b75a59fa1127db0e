// Package publish forwards appliance change notifications to NATS so
// out-of-process UI binders can mirror device state.
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/aird/internal/command"
	"github.com/dokzlo13/aird/internal/device"
	"github.com/dokzlo13/aird/internal/eventbus"
	"github.com/dokzlo13/aird/internal/state"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// ChangeMessage is the JSON body published for every merge cycle.
type ChangeMessage struct {
	Device   string          `json:"device"`
	Cycle    uint64          `json:"cycle"`
	At       time.Time       `json:"at"`
	Keys     []device.Key    `json:"keys,omitempty"`
	Sensors  []device.Sensor `json:"sensors,omitempty"`
	Snapshot device.Snapshot `json:"snapshot"`
}

// CommandMessage is the JSON body published for every resolved write.
type CommandMessage struct {
	Device  string       `json:"device"`
	Ticket  string       `json:"ticket"`
	Key     device.Key   `json:"key"`
	Value   device.Value `json:"value"`
	Origin  string       `json:"origin"`
	Outcome string       `json:"outcome"`
	Reason  string       `json:"reason,omitempty"`
}

// NATSPublisher publishes bus events to `<subject>.<device>` (changes) and
// `<subject>.<device>.commands` (write outcomes).
type NATSPublisher struct {
	conn    Conn
	nc      *nats.Conn
	subject string
}

// Connect dials url and returns a publisher rooted at subject.
func Connect(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("aird"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("url", url).Str("subject", subject).Msg("NATS publisher connected")
	p := New(nc, subject)
	p.nc = nc
	return p, nil
}

// New wraps an existing connection.
func New(conn Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

// Attach subscribes the publisher to the bus.
func (p *NATSPublisher) Attach(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventStateChanged, p.handleChange)
	bus.Subscribe(eventbus.EventCommand, p.handleCommand)
}

func (p *NATSPublisher) handleChange(e eventbus.Event) {
	change, ok := e.Payload.(state.Change)
	if !ok {
		return
	}
	msg := ChangeMessage{
		Device:   change.DeviceID,
		Cycle:    change.Cycle,
		At:       change.At,
		Keys:     change.Keys,
		Sensors:  change.Sensors,
		Snapshot: change.Snapshot,
	}
	p.publish(p.subject+"."+change.DeviceID, msg)
}

func (p *NATSPublisher) handleCommand(e eventbus.Event) {
	res, ok := e.Payload.(command.Result)
	if !ok {
		return
	}
	msg := CommandMessage{
		Device:  res.DeviceID,
		Ticket:  res.TicketID.String(),
		Key:     res.Key,
		Value:   res.Value,
		Origin:  string(res.Origin),
		Outcome: res.Outcome.String(),
		Reason:  res.Reason,
	}
	p.publish(p.subject+"."+res.DeviceID+".commands", msg)
}

func (p *NATSPublisher) publish(subject string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to marshal NATS message")
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish NATS message")
		return
	}
	log.Debug().Str("subject", subject).Int("bytes", len(data)).Msg("Published NATS message")
}

// Close drains the connection if the publisher dialed it.
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("NATS drain failed")
		p.nc.Close()
	}
}
