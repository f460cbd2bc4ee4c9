package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
	"golang.org/x/sync/singleflight"
)

// Clock supplies the current KST time
type Clock interface {
	Now() time.Time
}

// Config wires a Ledger
type Config struct {
	Store   trade.Store
	Clock   Clock
	DataDir string                 // portfolio_snapshots.json / close_price_cache.json 위치
	Closes  trade.ClosePriceSource // optional, backfill용 과거 종가
}

// Ledger is the durable record of strategy positions.
// The store is authoritative: every operation reloads it under mu, so writes made by
// another process (CLI fixes, a second server) are never overwritten from a stale copy.
type Ledger struct {
	store   trade.Store
	clock   Clock
	dataDir string
	closes  trade.ClosePriceSource

	mu     sync.Mutex
	trades []trade.Trade // last successfully loaded or saved table, never mutated in place

	snapMu  sync.Mutex // portfolio_snapshots.json
	cacheMu sync.Mutex // close_price_cache.json
	sf      singleflight.Group
}

// New loads the backing table and returns a ready Ledger
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("ledger clock is required")
	}

	trades, err := cfg.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	log.Info().Int("rows", len(trades)).Msg("✅ Ledger loaded")

	return &Ledger{
		store:   cfg.Store,
		clock:   cfg.Clock,
		dataDir: cfg.DataDir,
		closes:  cfg.Closes,
		trades:  trades,
	}, nil
}

// reloadLocked replaces the cached table with the store's current contents
func (l *Ledger) reloadLocked(ctx context.Context) error {
	trades, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload ledger: %w", err)
	}
	l.trades = trades
	return nil
}

// mutate runs a read-modify-write against a fresh copy of the table.
// The cache only advances when the store accepted the new table.
func (l *Ledger) mutate(ctx context.Context, fn func(trades []trade.Trade) ([]trade.Trade, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.reloadLocked(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to reload ledger")
		return err
	}

	next, err := fn(append([]trade.Trade(nil), l.trades...))
	if err != nil {
		return err
	}

	if err := l.store.Save(ctx, next); err != nil {
		log.Error().Err(err).Msg("Failed to persist ledger")
		return fmt.Errorf("persist ledger: %w", err)
	}
	l.trades = next
	return nil
}

// current returns the freshly loaded table, or the last good copy when the store is unreadable.
// The returned slice is shared and must not be modified.
func (l *Ledger) current() []trade.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.reloadLocked(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Ledger reload failed, serving last loaded table")
	}
	return l.trades
}

// LogBuy appends a HOLD row. Rejected with ErrDuplicatePosition if (strategy, code) is already held.
func (l *Ledger) LogBuy(ctx context.Context, strategyName, code string, price, qty int64) error {
	if qty <= 0 {
		qty = 1
	}

	err := l.mutate(ctx, func(trades []trade.Trade) ([]trade.Trade, error) {
		if findHold(trades, strategyName, code) >= 0 {
			log.Warn().Str("strategy", strategyName).Str("code", code).Msg("Duplicate buy rejected")
			return nil, fmt.Errorf("%w: %s/%s", trade.ErrDuplicatePosition, strategyName, code)
		}
		return append(trades, trade.Trade{
			ID:       uuid.New(),
			Strategy: strategyName,
			Code:     code,
			BuyDate:  l.clock.Now().Format(trade.DateTimeLayout),
			BuyPrice: price,
			Qty:      qty,
			Status:   trade.StatusHold,
		}), nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("strategy", strategyName).
		Str("code", code).
		Int64("price", price).
		Int64("qty", qty).
		Msg("Virtual buy recorded")
	return nil
}

// LogSell closes the most recent HOLD row for code across all strategies
func (l *Ledger) LogSell(ctx context.Context, code string, price int64) error {
	return l.sell(ctx, "", code, price)
}

// LogSellByStrategy closes the most recent HOLD row for (strategy, code)
func (l *Ledger) LogSellByStrategy(ctx context.Context, strategyName, code string, price int64) error {
	return l.sell(ctx, strategyName, code, price)
}

func (l *Ledger) sell(ctx context.Context, strategyName, code string, price int64) error {
	var closed trade.Trade

	err := l.mutate(ctx, func(trades []trade.Trade) ([]trade.Trade, error) {
		i := findHold(trades, strategyName, code)
		if i < 0 {
			log.Warn().Str("strategy", strategyName).Str("code", code).Msg("No open position to sell")
			return nil, fmt.Errorf("%w: %s/%s", trade.ErrNoOpenPosition, strategyName, code)
		}

		now := l.clock.Now().Format(trade.DateTimeLayout)
		p := price
		t := &trades[i]
		t.SellDate = &now
		t.SellPrice = &p
		t.ReturnRate = ReturnRate(t.BuyPrice, price)
		t.Status = trade.StatusSold
		closed = *t
		return trades, nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("strategy", closed.Strategy).
		Str("code", code).
		Int64("price", price).
		Float64("return_rate", closed.ReturnRate).
		Msg("Virtual sell recorded")
	return nil
}

// findHold returns the index of the most recent HOLD row, or -1.
// An empty strategyName matches any strategy.
func findHold(trades []trade.Trade, strategyName, code string) int {
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		if t.IsHold() && t.Code == code && (strategyName == "" || t.Strategy == strategyName) {
			return i
		}
	}
	return -1
}

// AllTrades returns every row
func (l *Ledger) AllTrades() []trade.Trade {
	return l.filter(func(trade.Trade) bool { return true })
}

// Holds returns all open positions
func (l *Ledger) Holds() []trade.Trade {
	return l.filter(trade.Trade.IsHold)
}

// Solds returns all closed positions
func (l *Ledger) Solds() []trade.Trade {
	return l.filter(func(t trade.Trade) bool { return t.Status == trade.StatusSold })
}

// HoldsByStrategy returns the open positions of one strategy
func (l *Ledger) HoldsByStrategy(strategyName string) []trade.Trade {
	return l.filter(func(t trade.Trade) bool {
		return t.IsHold() && t.Strategy == strategyName
	})
}

// IsHolding reports whether (strategy, code) has an open position
func (l *Ledger) IsHolding(strategyName, code string) bool {
	return findHold(l.current(), strategyName, code) >= 0
}

func (l *Ledger) filter(keep func(trade.Trade) bool) []trade.Trade {
	trades := l.current()

	out := make([]trade.Trade, 0, len(trades))
	for _, t := range trades {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// Summary aggregates win rate and average return over SOLD rows
func (l *Ledger) Summary() trade.Summary {
	trades := l.current()

	summary := trade.Summary{TotalTrades: len(trades)}

	var sold, wins int64
	total := decimal.Zero
	for _, t := range trades {
		if t.Status != trade.StatusSold {
			continue
		}
		sold++
		if t.ReturnRate > 0 {
			wins++
		}
		total = total.Add(decimal.NewFromFloat(t.ReturnRate))
	}
	if sold == 0 {
		return summary
	}

	n := decimal.NewFromInt(sold)
	summary.WinRate = decimal.NewFromInt(wins).Mul(decimal.NewFromInt(100)).Div(n).Round(1).InexactFloat64()
	summary.AvgReturn = total.Div(n).Round(2).InexactFloat64()
	return summary
}

// FixSellPrice corrects SOLD rows whose sell price was recorded as 0.
// buyDate (full timestamp or YYYY-MM-DD) narrows the match when non-empty. Returns the number of fixed rows.
func (l *Ledger) FixSellPrice(ctx context.Context, code, buyDate string, price int64) (int, error) {
	fixed := 0

	err := l.mutate(ctx, func(trades []trade.Trade) ([]trade.Trade, error) {
		for i := range trades {
			t := &trades[i]
			if t.Code != code || t.Status != trade.StatusSold {
				continue
			}
			if t.SellPrice == nil || *t.SellPrice != 0 {
				continue
			}
			if buyDate != "" && t.BuyDate != buyDate && t.BuyDay() != buyDate {
				continue
			}
			p := price
			t.SellPrice = &p
			t.ReturnRate = ReturnRate(t.BuyPrice, price)
			fixed++
		}
		if fixed == 0 {
			return nil, fmt.Errorf("%w: %s", trade.ErrNothingToFix, code)
		}
		return trades, nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().Str("code", code).Int64("price", price).Int("rows", fixed).Msg("Sell price corrected")
	return fixed, nil
}

// ReturnRate is (sell-buy)/buy*100 rounded to 2 decimals, 0 when buy is 0
func ReturnRate(buyPrice, sellPrice int64) float64 {
	if buyPrice == 0 {
		return 0
	}
	return decimal.NewFromInt(sellPrice - buyPrice).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(buyPrice)).
		Round(2).
		InexactFloat64()
}

// round2 rounds to 2 decimals, half away from zero
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// average returns the 2-decimal mean of values
func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return sum.Div(decimal.NewFromInt(int64(len(values)))).Round(2).InexactFloat64()
}
