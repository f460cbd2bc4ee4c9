// Package snapshot runs the end-of-day return snapshot and the gap backfill.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
)

// Ledger is the ledger surface the jobs need
type Ledger interface {
	CurrentReturns(ctx context.Context, quotes strategy.QuoteFetcher) map[string]float64
	SaveDailySnapshot(returns map[string]float64) error
	Backfill(ctx context.Context) (int, error)
}

// Calendar reports exchange trading days
type Calendar interface {
	Now() time.Time
	IsTradingDay(t time.Time) bool
}

// Scheduler registers cron jobs
type Scheduler interface {
	Add(name, spec string, job func(context.Context)) (cron.EntryID, error)
}

// Service owns the snapshot jobs
type Service struct {
	ledger   Ledger
	quotes   strategy.QuoteFetcher
	calendar Calendar
}

// NewService creates the snapshot service. calendar may be nil.
func NewService(ledger Ledger, quotes strategy.QuoteFetcher, calendar Calendar) *Service {
	return &Service{ledger: ledger, quotes: quotes, calendar: calendar}
}

// TakeDailySnapshot records today's per-strategy returns.
// Returns false when today is not a trading day or nothing is held or sold.
func (s *Service) TakeDailySnapshot(ctx context.Context) (bool, error) {
	if s.calendar != nil {
		if now := s.calendar.Now(); !s.calendar.IsTradingDay(now) {
			log.Info().Str("date", now.Format(trade.DayLayout)).Msg("Not a trading day, snapshot skipped")
			return false, nil
		}
	}

	returns := s.ledger.CurrentReturns(ctx, s.quotes)
	if len(returns) == 0 {
		log.Info().Msg("No positions, snapshot skipped")
		return false, nil
	}

	if err := s.ledger.SaveDailySnapshot(returns); err != nil {
		return false, fmt.Errorf("save daily snapshot: %w", err)
	}

	log.Info().
		Int("strategies", len(returns)-1).
		Float64("all", returns[trade.AllKey]).
		Msg("✅ Daily snapshot saved")
	return true, nil
}

// RunBackfill reconstructs missing snapshot days
func (s *Service) RunBackfill(ctx context.Context) (int, error) {
	added, err := s.ledger.Backfill(ctx)
	if err != nil {
		return 0, fmt.Errorf("backfill: %w", err)
	}
	log.Info().Int("days", added).Msg("✅ Snapshot backfill finished")
	return added, nil
}

// Schedule registers both jobs. An empty spec disables that job.
func (s *Service) Schedule(r Scheduler, snapshotSpec, backfillSpec string) error {
	if snapshotSpec != "" {
		if _, err := r.Add("daily-snapshot", snapshotSpec, func(ctx context.Context) {
			if _, err := s.TakeDailySnapshot(ctx); err != nil {
				log.Error().Err(err).Msg("Daily snapshot job failed")
			}
		}); err != nil {
			return fmt.Errorf("schedule daily snapshot: %w", err)
		}
	}
	if backfillSpec != "" {
		if _, err := r.Add("snapshot-backfill", backfillSpec, func(ctx context.Context) {
			if _, err := s.RunBackfill(ctx); err != nil {
				log.Error().Err(err).Msg("Snapshot backfill job failed")
			}
		}); err != nil {
			return fmt.Errorf("schedule backfill: %w", err)
		}
	}
	return nil
}
