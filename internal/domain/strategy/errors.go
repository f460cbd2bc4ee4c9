package strategy

import "errors"

// Scheduler errors
var (
	ErrDuplicateStrategy = errors.New("strategy already registered")
	ErrStrategyNotFound  = errors.New("strategy not found")
	ErrInvalidSignal     = errors.New("invalid trade signal")
	ErrNotInitialized    = errors.New("scheduler not initialized")
)
