package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
)

const createTradesTable = `
	CREATE SCHEMA IF NOT EXISTS trade;

	CREATE TABLE IF NOT EXISTS trade.strategy_trades (
		id          UUID PRIMARY KEY,
		seq         BIGSERIAL,
		strategy    TEXT NOT NULL,
		code        TEXT NOT NULL,
		buy_date    TEXT NOT NULL,
		buy_price   BIGINT NOT NULL,
		qty         BIGINT NOT NULL DEFAULT 1,
		sell_date   TEXT,
		sell_price  BIGINT,
		return_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		status      TEXT NOT NULL,
		updated_ts  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_strategy_trades_hold
		ON trade.strategy_trades (strategy, code) WHERE status = 'HOLD';
`

// TradeRepository implements trade.Store on PostgreSQL
type TradeRepository struct {
	pool *pgxpool.Pool
}

var _ trade.Store = (*TradeRepository)(nil)

// NewTradeRepository creates a new TradeRepository
func NewTradeRepository(pool *pgxpool.Pool) *TradeRepository {
	return &TradeRepository{pool: pool}
}

// EnsureSchema creates the trade table if missing
func (r *TradeRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createTradesTable); err != nil {
		return fmt.Errorf("create strategy_trades: %w", err)
	}
	return nil
}

// Load returns every row in insertion order
func (r *TradeRepository) Load(ctx context.Context) ([]trade.Trade, error) {
	query := `
		SELECT id, strategy, code, buy_date, buy_price, qty, sell_date, sell_price, return_rate, status
		FROM trade.strategy_trades
		ORDER BY seq ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []trade.Trade
	for rows.Next() {
		var (
			t  trade.Trade
			id pgtype.UUID
		)
		if err := rows.Scan(
			&id,
			&t.Strategy,
			&t.Code,
			&t.BuyDate,
			&t.BuyPrice,
			&t.Qty,
			&t.SellDate,
			&t.SellPrice,
			&t.ReturnRate,
			&t.Status,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.ID = uuid.UUID(id.Bytes)
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return trades, nil
}

// Save replaces the table contents with trades in one transaction
func (r *TradeRepository) Save(ctx context.Context, trades []trade.Trade) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]string, 0, len(trades))
	batch := &pgx.Batch{}
	for _, t := range trades {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		ids = append(ids, t.ID.String())
		batch.Queue(`
			INSERT INTO trade.strategy_trades
				(id, strategy, code, buy_date, buy_price, qty, sell_date, sell_price, return_rate, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				sell_date   = EXCLUDED.sell_date,
				sell_price  = EXCLUDED.sell_price,
				return_rate = EXCLUDED.return_rate,
				status      = EXCLUDED.status,
				qty         = EXCLUDED.qty,
				updated_ts  = NOW()
		`,
			pgtype.UUID{Bytes: t.ID, Valid: true},
			t.Strategy,
			t.Code,
			t.BuyDate,
			t.BuyPrice,
			t.Qty,
			t.SellDate,
			t.SellPrice,
			t.ReturnRate,
			t.Status,
		)
	}
	batch.Queue(`DELETE FROM trade.strategy_trades WHERE NOT (id = ANY($1::uuid[]))`, ids)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert trades: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.Debug().Int("rows", len(trades)).Msg("Trade table saved")
	return nil
}
