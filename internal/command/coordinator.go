// Package command runs the propose, confirm, apply protocol for attribute
// writes. A write touches the appliance snapshot only after the sink
// confirms it.
package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/aird/internal/device"
	"github.com/dokzlo13/aird/internal/state"
)

// Sink delivers proposals to the device. Every proposed ticket must
// eventually be resolved exactly once, either from within Propose or later
// from another goroutine.
type Sink interface {
	Propose(ctx context.Context, t *Ticket)
}

// Outcome of a SetAttribute call.
type Outcome int

const (
	Unchanged Outcome = iota
	Applied
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Rejected:
		return "rejected"
	default:
		return "unchanged"
	}
}

// Result describes a finished SetAttribute call.
type Result struct {
	TicketID uuid.UUID
	DeviceID string
	Key      device.Key
	Value    device.Value
	Origin   Origin
	Outcome  Outcome

	// Reason is the sink's rejection reason.
	Reason string
	// Err is set when the rejection came from a delivery failure.
	Err error

	// Change is the merge cycle a confirmed write produced, if any.
	Change state.Change
	// Latency is the time between proposal and resolution.
	Latency time.Duration
}

// Observer is called after every proposal resolves, with the lock released.
type Observer func(Result)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithObserver registers fn for every resolved proposal.
func WithObserver(fn Observer) Option {
	return func(c *Coordinator) { c.observers = append(c.observers, fn) }
}

// Coordinator serializes attribute writes for one appliance through the
// appliance lock, so at most one proposal is in flight at a time.
type Coordinator struct {
	store     *state.Store
	sink      Sink
	now       func() time.Time
	observers []Observer

	mu         sync.Mutex
	active     *Ticket
	lastManual time.Time
}

// New creates a Coordinator for the appliance owned by store.
func New(store *state.Store, sink Sink, opts ...Option) *Coordinator {
	c := &Coordinator{
		store: store,
		sink:  sink,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAttribute writes key=value as a manual command.
func (c *Coordinator) SetAttribute(ctx context.Context, key device.Key, value device.Value) (Result, error) {
	return c.Set(ctx, OriginManual, key, value)
}

// Set proposes key=value and blocks until the sink resolves the proposal or
// ctx is done. Rejection is reported through Result.Outcome, not as an error.
// A cancelled ctx abandons the proposal and returns ErrProposalAbandoned.
func (c *Coordinator) Set(ctx context.Context, origin Origin, key device.Key, value device.Value) (Result, error) {
	res := Result{
		DeviceID: c.store.ID(),
		Key:      key,
		Value:    value,
		Origin:   origin,
	}

	snap := c.store.Snapshot()
	if err := c.validate(snap, key, value); err != nil {
		return res, err
	}
	if origin == OriginManual {
		c.mu.Lock()
		c.lastManual = c.now()
		c.mu.Unlock()
	}
	if cur, ok := snap.Get(key); ok && cur.Equal(value) {
		return res, nil
	}

	res, err := c.propose(ctx, res)
	if res.TicketID != uuid.Nil {
		for _, fn := range c.observers {
			fn(res)
		}
	}
	return res, err
}

func (c *Coordinator) propose(ctx context.Context, res Result) (Result, error) {
	session, err := c.store.Acquire(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: waiting for device lock: %v", ErrProposalAbandoned, err)
	}
	defer session.Release()

	// Another write may have landed while we waited for the lock.
	if cur, ok := session.Snapshot().Get(res.Key); ok && cur.Equal(res.Value) {
		return res, nil
	}

	ticket := newTicket(res.DeviceID, res.Key, res.Value, res.Origin, c.now())
	res.TicketID = ticket.ID

	c.mu.Lock()
	c.active = ticket
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.active == ticket {
			c.active = nil
		}
		c.mu.Unlock()
	}()

	log.Debug().
		Str("device", res.DeviceID).
		Str("ticket", ticket.ID.String()).
		Str("key", string(res.Key)).
		Str("value", res.Value.String()).
		Str("origin", string(res.Origin)).
		Msg("Proposing attribute write")

	c.sink.Propose(ctx, ticket)

	select {
	case <-ticket.Done():
	case <-ctx.Done():
		if ticket.Fail(ctx.Err()) == nil {
			log.Warn().
				Str("device", res.DeviceID).
				Str("ticket", ticket.ID.String()).
				Str("key", string(res.Key)).
				Msg("Proposal abandoned before resolution")
			res.Outcome = Rejected
			res.Err = ctx.Err()
			res.Reason = ctx.Err().Error()
			res.Latency = c.now().Sub(ticket.CreatedAt)
			return res, fmt.Errorf("%w: %v", ErrProposalAbandoned, ctx.Err())
		}
		// Resolved concurrently with cancellation; honour the resolution.
	}
	res.Latency = c.now().Sub(ticket.CreatedAt)

	ok, reason, failure := ticket.result()
	if !ok {
		res.Outcome = Rejected
		res.Reason = reason
		res.Err = failure
		log.Info().
			Str("device", res.DeviceID).
			Str("key", string(res.Key)).
			Str("reason", reason).
			Msg("Attribute write rejected")
		return res, nil
	}

	delta := device.Delta{State: device.State{res.Key: res.Value}}
	for k, v := range sideEffects(session.Snapshot(), res.Key, res.Value) {
		delta.State[k] = v
	}
	res.Change, _ = session.Merge(delta)
	res.Outcome = Applied

	log.Info().
		Str("device", res.DeviceID).
		Str("key", string(res.Key)).
		Str("value", res.Value.String()).
		Str("origin", string(res.Origin)).
		Dur("latency", res.Latency).
		Msg("Attribute write applied")
	return res, nil
}

func (c *Coordinator) validate(snap device.Snapshot, key device.Key, value device.Value) error {
	if _, ok := snap.Get(key); !ok || !key.IsKnown() {
		return &ValidationError{DeviceID: c.store.ID(), Key: key, Err: ErrUnknownAttribute}
	}
	if !key.Accepts(value) {
		return &ValidationError{DeviceID: c.store.ID(), Key: key, Err: ErrInvalidValue}
	}
	return nil
}

// InFlight returns the proposal awaiting resolution, or nil.
func (c *Coordinator) InFlight() *Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// LastManual returns when the most recent valid manual write was issued.
func (c *Coordinator) LastManual() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastManual
}

// sideEffects returns the attributes a confirmed write implicitly changes
// on the device. Only attributes the device has are included.
func sideEffects(snap device.Snapshot, key device.Key, value device.Value) device.State {
	implied := device.State{}
	set := func(k device.Key, v device.Value) {
		if _, ok := snap.Get(k); ok {
			implied[k] = v
		}
	}

	switch key {
	case device.KeyNightMode:
		if value.AsBool() {
			set(device.KeyBrightness, device.Number(0))
			set(device.KeyAutoMode, device.Bool(false))
		}
	case device.KeyAutoMode:
		if value.AsBool() {
			set(device.KeyNightMode, device.Bool(false))
		}
	}
	return implied
}
