package errs

import "errors"

// Sentinel errors the capacity engine surfaces to its callers.
var (
	// Ledger errors
	ErrLedgerNotFound         = errors.New("capacity ledger not found")
	ErrInsufficientCapacity   = errors.New("insufficient capacity")
	ErrCapacityBelowCommitted = errors.New("new capacity below committed units")
	ErrSyncConflict           = errors.New("partner inventory conflicts with committed units")

	// Booking errors
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid booking transition")
	ErrPaymentConflict   = errors.New("payment transaction id mismatch")
	ErrInvalidUnits      = errors.New("units outside allowed range")

	// Transaction errors
	ErrBusy = errors.New("resource busy, retry later")
)
