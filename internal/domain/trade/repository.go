package trade

import (
	"context"
	"time"
)

// Store persists the ledger table
type Store interface {
	// Load returns every row in insertion order
	Load(ctx context.Context) ([]Trade, error)

	// Save persists the full table. Rows are never removed, only appended or updated.
	Save(ctx context.Context, trades []Trade) error
}

// ClosePriceSource fetches historical daily closes for backfill
type ClosePriceSource interface {
	FetchDailyCloses(ctx context.Context, code string, from, to time.Time) ([]ClosePrice, error)
}
