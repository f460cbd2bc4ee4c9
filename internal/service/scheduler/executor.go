package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
)

const (
	timestampLayout   = "2006-01-02 15:04:05"
	liquidationReason = "strategy stopped: forced liquidation (market)"
)

// executeSignalSafe runs executeSignal with panics converted to errors
func (s *Service) executeSignalSafe(ctx context.Context, sig strategy.TradeSignal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("execute %s %s: panic: %v", sig.Action, sig.Code, r)
		}
	}()
	return s.executeSignal(ctx, sig)
}

// executeSignal records a signal in the ledger, then submits the order.
// Ledger first: a failed order still leaves a ledger row, marked api_success=false in history.
func (s *Service) executeSignal(ctx context.Context, sig strategy.TradeSignal) error {
	if sig.Code == "" {
		return fmt.Errorf("%w: empty code", strategy.ErrInvalidSignal)
	}
	if sig.Action != strategy.ActionBuy && sig.Action != strategy.ActionSell {
		return fmt.Errorf("%w: action %q", strategy.ErrInvalidSignal, sig.Action)
	}

	logger := log.With().
		Str("strategy", sig.StrategyName).
		Str("code", sig.Code).
		Str("action", sig.Action).
		Logger()

	// 시장가 주문은 원장 기록용 현재가 조회 (주문은 0으로 제출)
	logPrice := sig.Price
	if sig.IsMarketOrder() && s.quotes != nil {
		if q, err := s.quotes.GetQuote(ctx, sig.Code); err != nil {
			logger.Warn().Err(err).Msg("Quote lookup failed, logging price 0")
		} else if q != nil {
			logPrice = q.Price
		}
	}

	logger.Info().
		Int64("price", logPrice).
		Int64("qty", sig.Qty).
		Str("reason", sig.Reason).
		Bool("dry_run", s.dryRun).
		Msg("Executing signal")

	var ledgerErr error
	if sig.Action == strategy.ActionBuy {
		ledgerErr = s.ledger.LogBuy(ctx, sig.StrategyName, sig.Code, logPrice, sig.Qty)
	} else {
		ledgerErr = s.ledger.LogSellByStrategy(ctx, sig.StrategyName, sig.Code, logPrice)
	}
	switch {
	case ledgerErr == nil:
	case errors.Is(ledgerErr, trade.ErrDuplicatePosition), errors.Is(ledgerErr, trade.ErrNoOpenPosition):
		logger.Warn().Err(ledgerErr).Msg("Ledger skipped signal")
	default:
		logger.Error().Err(ledgerErr).Msg("Ledger write failed")
	}

	apiSuccess := true
	if !s.dryRun {
		apiSuccess = s.placeOrder(ctx, sig)
	}

	record := strategy.SignalRecord{
		StrategyName: sig.StrategyName,
		Code:         sig.Code,
		Name:         sig.Name,
		Action:       sig.Action,
		Price:        logPrice,
		Reason:       sig.Reason,
		Timestamp:    s.clock.Now().Format(timestampLayout),
		APISuccess:   apiSuccess,
	}
	s.history.Add(record)
	if s.onSignal != nil {
		s.onSignal(record)
	}

	return nil
}

// placeOrder submits the order and reports whether the broker accepted it
func (s *Service) placeOrder(ctx context.Context, sig strategy.TradeSignal) bool {
	logger := log.With().Str("strategy", sig.StrategyName).Str("code", sig.Code).Logger()

	if s.gateway == nil {
		logger.Error().Msg("No order gateway configured")
		return false
	}

	var (
		result *strategy.OrderResult
		err    error
	)
	if sig.Action == strategy.ActionBuy {
		result, err = s.gateway.PlaceBuyOrder(ctx, sig.Code, sig.Price, sig.Qty)
	} else {
		result, err = s.gateway.PlaceSellOrder(ctx, sig.Code, sig.Price, sig.Qty)
	}

	if err != nil {
		logger.Error().Err(err).Msg("Order submission failed")
		return false
	}
	if !result.Success() {
		ev := logger.Warn()
		if result != nil {
			ev = ev.Str("rt_cd", result.RtCd).Str("msg_cd", result.MsgCd).Str("msg", result.Msg)
		}
		ev.Msg("Order rejected")
		return false
	}

	logger.Info().Str("order_no", result.OrderNo).Msg("✅ Order accepted")
	return true
}

// forceLiquidate sells every open position of a strategy at market price
func (s *Service) forceLiquidate(ctx context.Context, e *entry) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	name := e.name()
	holds := s.ledger.HoldsByStrategy(name)
	if len(holds) == 0 {
		return
	}

	log.Warn().Str("strategy", name).Int("positions", len(holds)).Msg("Force liquidating strategy positions")

	for _, h := range holds {
		sig := strategy.TradeSignal{
			StrategyName: name,
			Code:         h.Code,
			Name:         h.Code,
			Action:       strategy.ActionSell,
			Price:        strategy.MarketPrice,
			Qty:          h.Qty,
			Reason:       liquidationReason,
		}
		if err := s.executeSignalSafe(ctx, sig); err != nil {
			log.Error().Err(err).Str("strategy", name).Str("code", h.Code).Msg("Forced liquidation failed")
		}
	}
}
