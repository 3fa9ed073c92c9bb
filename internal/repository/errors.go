package repository

import (
	"errors"
	"fmt"
)

// ErrInvalidID marks an identifier Postgres cannot even parse as a UUID.
// Handlers map it to a validation failure rather than a server error.
var ErrInvalidID = errors.New("malformed id")

// ErrPositionTaken marks a village insert losing the race for a grid cell
// (unique (x, y) violation). Provisioning retries with a fresh position.
var ErrPositionTaken = errors.New("grid position taken")

// InsufficientError reports a checked debit that would drive a balance
// negative. It names the short resource so the caller can surface it.
type InsufficientError struct {
	Resource  string
	Requested int64
	Available int64
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient %s: need %d, have %d", e.Resource, e.Requested, e.Available)
}

// Shortfall returns how much of the resource is missing.
func (e *InsufficientError) Shortfall() int64 {
	return e.Requested - e.Available
}
