package command

import (
	"errors"
	"fmt"

	"github.com/dokzlo13/aird/internal/device"
)

var (
	ErrUnknownAttribute  = errors.New("unknown attribute")
	ErrInvalidValue      = errors.New("invalid value for attribute")
	ErrAlreadyResolved   = errors.New("proposal already resolved")
	ErrProposalAbandoned = errors.New("proposal abandoned")
)

// ValidationError is returned when a write targets an attribute the device
// does not have or carries a value of the wrong kind. No proposal is made.
type ValidationError struct {
	DeviceID string
	Key      device.Key
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("device %s: %s: %v", e.DeviceID, e.Key, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
