package memledger

import "errors"

var (
	// ErrInsufficientBudget is returned when an allocation cannot be
	// satisfied even after eviction.
	ErrInsufficientBudget = errors.New("insufficient budget")

	// ErrNotFound is returned when the requested id is not in the ledger.
	ErrNotFound = errors.New("allocation not found")

	// ErrReclaimed is returned when the requested id existed but its payload
	// has been destroyed by its owner. The error is terminal for that id.
	ErrReclaimed = errors.New("payload reclaimed")

	// ErrLedgerTerminated is returned by every operation invoked after
	// Destroy.
	ErrLedgerTerminated = errors.New("ledger terminated")
)
