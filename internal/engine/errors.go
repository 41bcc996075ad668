package engine

import "errors"

// Kernel error kinds. Callers match these with errors.Is; the wrapped
// message carries the specifics.
var (
	// ErrUnknownInstrument is returned for any instrument other than R.index.
	ErrUnknownInstrument = errors.New("unknown instrument")

	// ErrUnknownTrader is returned when the trader id has never been registered.
	ErrUnknownTrader = errors.New("unknown trader")

	// ErrInvalidOrder is returned when size, price, or leverage fail validation.
	// The order mutates nothing and emits nothing.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrSelfTradeOnly is returned when a market order found liquidity but all
	// of it belonged to the submitting trader.
	ErrSelfTradeOnly = errors.New("self trade only")

	// ErrNotFound is returned by lookups and cancels that miss.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when registering a username that already exists.
	ErrDuplicate = errors.New("already exists")

	// ErrPersistence is returned when the store fails during recovery. Store
	// failures after a fill are logged instead, since in-memory state stays
	// authoritative until the next restart.
	ErrPersistence = errors.New("persistence failure")
)
