package types

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidDateRange covers malformed ranges and start dates in the past.
	ErrInvalidDateRange = errors.New("invalid date range")
	// ErrAvailabilityExceeded means the requested quantity cannot be
	// fulfilled for the requested range.
	ErrAvailabilityExceeded = errors.New("availability exceeded")
	// ErrInvalidTransition is surfaced when a lifecycle change violates the
	// state machine, including a lost race against a concurrent writer.
	ErrInvalidTransition = errors.New("invalid rental transition")
	// ErrDuplicateEvent is internal only; the reconciler swallows it.
	ErrDuplicateEvent     = errors.New("payment event already applied")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrProviderError      = errors.New("payment provider error")
	ErrNotFound           = errors.New("record not found")
)
