package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	"golang.org/x/sync/errgroup"
)

// loop wakes on a fixed cadence until ctx is cancelled
func (s *Service) loop(ctx context.Context) {
	log.Info().Dur("interval", s.loopInterval).Msg("Scheduler loop started")
	defer log.Info().Msg("Scheduler loop stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(s.runCycle(ctx))
		}
	}
}

// runCycle performs one wake-up and returns how long to sleep before the next
func (s *Service) runCycle(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Scheduler loop panic, backing off")
			wait = s.loopInterval
		}
	}()

	now := s.clock.Now()
	if !s.clock.IsMarketOpen(now) {
		return s.closedSleep
	}

	minutesToClose := s.clock.MarketCloseTime(now).Sub(now).Minutes()

	s.mu.RLock()
	entries := append([]*entry(nil), s.entries...)
	s.mu.RUnlock()

	for _, e := range entries {
		if ctx.Err() != nil {
			return s.loopInterval
		}

		s.mu.Lock()
		if !e.cfg.Enabled {
			s.mu.Unlock()
			continue
		}
		shouldRun := e.lastRun.IsZero() || now.Sub(e.lastRun) >= e.cfg.Interval
		forceExit := e.cfg.ForceExitOnClose && minutesToClose <= ForceExitMinutesBefore
		if !shouldRun && !forceExit {
			s.mu.Unlock()
			continue
		}
		e.lastRun = now
		s.mu.Unlock()

		forceExitOnly := forceExit && !shouldRun
		if err := s.runStrategy(ctx, e, forceExitOnly); err != nil {
			log.Error().Err(err).Str("strategy", e.name()).Msg("Strategy run failed")
		}
	}

	return s.loopInterval
}

// runStrategy processes exits first, then (unless forceExitOnly) scans for entries
func (s *Service) runStrategy(ctx context.Context, e *entry, forceExitOnly bool) (err error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panic: %v", r)
		}
	}()

	s.mu.RLock()
	cfg := e.cfg
	s.mu.RUnlock()
	name := cfg.Strategy.Name()

	// 1. 보유 포지션 청산 조건 확인
	holds := s.ledger.HoldsByStrategy(name)
	if len(holds) > 0 {
		exits, err := cfg.Strategy.CheckExits(ctx, holds)
		if err != nil {
			return fmt.Errorf("check exits: %w", err)
		}
		var firstErr error
		for _, sig := range exits {
			if err := s.executeSignal(ctx, withStrategy(sig, name)); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if firstErr != nil {
			return firstErr
		}
	}

	if forceExitOnly {
		log.Debug().Str("strategy", name).Msg("Force-exit window, skipping entry scan")
		return nil
	}

	// 2. 신규 진입 (청산 반영 후 보유 수 재확인)
	current := len(s.ledger.HoldsByStrategy(name))
	if current >= cfg.MaxPositions {
		log.Debug().Str("strategy", name).Int("holds", current).Int("max", cfg.MaxPositions).Msg("Max positions reached, skipping scan")
		return nil
	}

	entries, err := cfg.Strategy.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	remaining := cfg.MaxPositions - current
	if len(entries) > remaining {
		entries = entries[:remaining]
	}
	if len(entries) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, sig := range entries {
		sig := withStrategy(sig, name)
		if sig.Qty <= 1 {
			sig.Qty = cfg.OrderQty
		}
		g.Go(func() error {
			return s.executeSignalSafe(ctx, sig)
		})
	}
	return g.Wait()
}

func withStrategy(sig strategy.TradeSignal, name string) strategy.TradeSignal {
	if sig.StrategyName == "" {
		sig.StrategyName = name
	}
	return sig
}
