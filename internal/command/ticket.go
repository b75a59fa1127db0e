package command

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dokzlo13/aird/internal/device"
)

// Origin tells who issued a command.
type Origin string

const (
	OriginManual Origin = "manual"
	OriginAuto   Origin = "auto"
)

// Ticket is one proposed attribute write. It resolves exactly once, either
// confirmed or rejected; later resolution attempts return ErrAlreadyResolved.
type Ticket struct {
	ID        uuid.UUID
	DeviceID  string
	Key       device.Key
	Value     device.Value
	Origin    Origin
	CreatedAt time.Time

	mu       sync.Mutex
	resolved bool
	ok       bool
	reason   string
	err      error
	done     chan struct{}
}

func newTicket(deviceID string, key device.Key, value device.Value, origin Origin, now time.Time) *Ticket {
	return &Ticket{
		ID:        uuid.New(),
		DeviceID:  deviceID,
		Key:       key,
		Value:     value,
		Origin:    origin,
		CreatedAt: now,
		done:      make(chan struct{}),
	}
}

// Confirm reports that the device accepted the write.
func (t *Ticket) Confirm() error {
	return t.resolve(true, "", nil)
}

// Reject reports that the device declined the write.
func (t *Ticket) Reject(reason string) error {
	return t.resolve(false, reason, nil)
}

// Fail rejects the write because the proposal could not be delivered.
func (t *Ticket) Fail(err error) error {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return t.resolve(false, reason, err)
}

func (t *Ticket) resolve(ok bool, reason string, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.resolved {
		return ErrAlreadyResolved
	}
	t.resolved = true
	t.ok = ok
	t.reason = reason
	t.err = err
	close(t.done)
	return nil
}

// Done is closed once the ticket is resolved.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Resolved reports whether the ticket has been confirmed or rejected.
func (t *Ticket) Resolved() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolved
}

func (t *Ticket) result() (ok bool, reason string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ok, t.reason, t.err
}
