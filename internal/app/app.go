// Package app wires the ledger and broker adapters from configuration.
// Shared by the API server and the quant CLI.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
	"github.com/wonny/aegis-strategy/internal/infra/database/postgres"
	"github.com/wonny/aegis-strategy/internal/infra/file"
	"github.com/wonny/aegis-strategy/internal/infra/kis"
	"github.com/wonny/aegis-strategy/internal/infra/naver"
	"github.com/wonny/aegis-strategy/internal/pkg/config"
	"github.com/wonny/aegis-strategy/internal/pkg/market"
	"github.com/wonny/aegis-strategy/internal/service/ledger"
)

// Ledger bundles the ledger with the pool backing it (nil on the CSV backend)
type Ledger struct {
	*ledger.Ledger
	Pool *postgres.Pool
}

// Close releases the database pool if any
func (l *Ledger) Close() {
	if l.Pool != nil {
		l.Pool.Close()
	}
}

// OpenStore returns the configured trade store
func OpenStore(ctx context.Context, cfg *config.Config) (trade.Store, *postgres.Pool, error) {
	switch cfg.Ledger.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		repo := postgres.NewTradeRepository(pool.Pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure ledger schema: %w", err)
		}
		log.Info().Msg("✅ Ledger backend: postgres")
		return repo, pool, nil
	default:
		store, err := file.NewTradeStore(cfg.Ledger.JournalPath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.Ledger.JournalPath).Msg("✅ Ledger backend: csv")
		return store, nil, nil
	}
}

// OpenLedger loads the ledger from the configured backend with Naver as the backfill close source
func OpenLedger(ctx context.Context, cfg *config.Config, clock ledger.Clock) (*Ledger, error) {
	store, pool, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	l, err := ledger.New(ctx, ledger.Config{
		Store:   store,
		Clock:   clock,
		DataDir: cfg.Scheduler.DataDir,
		Closes:  naver.NewCloseSource(),
	})
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}
	return &Ledger{Ledger: l, Pool: pool}, nil
}

// Broker is the quote and order side of the scheduler
type Broker struct {
	Quotes  strategy.QuoteFetcher
	Gateway strategy.OrderGateway // nil when only dry-run is possible
}

// OpenBroker builds the KIS gateway. Without credentials it falls back to
// Naver quotes, which is only allowed in dry-run.
func OpenBroker(cfg *config.Config) (*Broker, error) {
	kisCfg := kis.ConfigFrom(cfg.KIS)
	if err := kisCfg.Validate(); err != nil {
		if !cfg.Scheduler.DryRun {
			return nil, fmt.Errorf("KIS credentials required when SCHEDULER_DRY_RUN=false: %w", err)
		}
		log.Warn().Err(err).Msg("⚠️ KIS not configured, using Naver quotes (dry-run)")
		return &Broker{Quotes: naver.NewQuoteClient("")}, nil
	}

	gw, err := kis.NewGateway(kis.NewClient(kisCfg), kisCfg)
	if err != nil {
		return nil, err
	}
	log.Info().Bool("paper", kisCfg.IsPaper).Str("base_url", kisCfg.BaseURL).Msg("✅ KIS gateway initialized")
	return &Broker{Quotes: gw, Gateway: gw}, nil
}

// NewClock returns the KRX session clock with configured holidays
func NewClock(cfg *config.Config) *market.KRXClock {
	return market.NewKRXClock(cfg.Market.Holidays)
}
