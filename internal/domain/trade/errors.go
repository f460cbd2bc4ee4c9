package trade

import "errors"

// Ledger errors
var (
	ErrDuplicatePosition = errors.New("position already held for strategy")
	ErrNoOpenPosition    = errors.New("no open position")
	ErrNothingToFix      = errors.New("no sold row with missing sell price")
)
