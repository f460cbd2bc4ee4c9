// Package momentum implements a day-change momentum strategy over a fixed watchlist.
package momentum

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
)

// Params are the strategy's tunables, decoded from the registry file
type Params struct {
	Watchlist     []string          `yaml:"watchlist"`
	Names         map[string]string `yaml:"names"`           // code → 종목명
	MinChangeRate float64           `yaml:"min_change_rate"` // 진입: 전일대비율 (%) 이상
	MinVolume     int64             `yaml:"min_volume"`
	TakeProfit    float64           `yaml:"take_profit"` // 익절 (%)
	StopLoss      float64           `yaml:"stop_loss"`   // 손절 (%, 양수)
}

// Validate checks parameter sanity
func (p Params) Validate() error {
	if len(p.Watchlist) == 0 {
		return fmt.Errorf("watchlist is empty")
	}
	if p.TakeProfit <= 0 {
		return fmt.Errorf("take_profit must be positive, got %v", p.TakeProfit)
	}
	if p.StopLoss <= 0 {
		return fmt.Errorf("stop_loss must be positive, got %v", p.StopLoss)
	}
	return nil
}

// Strategy buys watchlist codes moving up strongly on the day
// and exits held positions on take-profit or stop-loss
type Strategy struct {
	name   string
	params Params
	quotes strategy.QuoteFetcher
}

var _ strategy.Strategy = (*Strategy)(nil)

// New creates a momentum strategy
func New(name string, params Params, quotes strategy.QuoteFetcher) (*Strategy, error) {
	if name == "" {
		return nil, fmt.Errorf("strategy name is required")
	}
	if quotes == nil {
		return nil, fmt.Errorf("%s: quote fetcher is required", name)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Strategy{name: name, params: params, quotes: quotes}, nil
}

// Name returns the unique strategy name
func (s *Strategy) Name() string {
	return s.name
}

// Scan returns BUY signals ordered by change rate, strongest first
func (s *Strategy) Scan(ctx context.Context) ([]strategy.TradeSignal, error) {
	type candidate struct {
		signal strategy.TradeSignal
		rate   float64
	}
	var candidates []candidate

	for _, code := range s.params.Watchlist {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		q, err := s.quotes.GetQuote(ctx, code)
		if err != nil {
			log.Warn().Err(err).Str("strategy", s.name).Str("code", code).Msg("Quote failed, skipping")
			continue
		}
		if q.ChangeRate < s.params.MinChangeRate || q.Volume < s.params.MinVolume {
			continue
		}

		candidates = append(candidates, candidate{
			rate: q.ChangeRate,
			signal: strategy.TradeSignal{
				StrategyName: s.name,
				Code:         code,
				Name:         s.displayName(code),
				Action:       strategy.ActionBuy,
				Price:        strategy.MarketPrice,
				Qty:          1,
				Reason:       fmt.Sprintf("momentum %.2f%% >= %.2f%%", q.ChangeRate, s.params.MinChangeRate),
			},
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].rate > candidates[j].rate
	})

	signals := make([]strategy.TradeSignal, 0, len(candidates))
	for _, c := range candidates {
		signals = append(signals, c.signal)
	}
	return signals, nil
}

// CheckExits returns SELL signals for holds past take-profit or stop-loss
func (s *Strategy) CheckExits(ctx context.Context, holds []trade.Trade) ([]strategy.TradeSignal, error) {
	var signals []strategy.TradeSignal

	for _, h := range holds {
		if h.BuyPrice <= 0 {
			continue
		}

		q, err := s.quotes.GetQuote(ctx, h.Code)
		if err != nil {
			log.Warn().Err(err).Str("strategy", s.name).Str("code", h.Code).Msg("Quote failed, exit check skipped")
			continue
		}

		ret := unrealized(h.BuyPrice, q.Price)

		var reason string
		switch {
		case ret >= s.params.TakeProfit:
			reason = fmt.Sprintf("take profit %.2f%%", ret)
		case ret <= -s.params.StopLoss:
			reason = fmt.Sprintf("stop loss %.2f%%", ret)
		default:
			continue
		}

		signals = append(signals, strategy.TradeSignal{
			StrategyName: s.name,
			Code:         h.Code,
			Name:         s.displayName(h.Code),
			Action:       strategy.ActionSell,
			Price:        strategy.MarketPrice,
			Qty:          h.Qty,
			Reason:       reason,
		})
	}
	return signals, nil
}

func (s *Strategy) displayName(code string) string {
	if name, ok := s.params.Names[code]; ok && name != "" {
		return name
	}
	return code
}

// unrealized returns (price - buy) / buy * 100
func unrealized(buyPrice, price int64) float64 {
	buy := decimal.NewFromInt(buyPrice)
	ret, _ := decimal.NewFromInt(price).Sub(buy).Div(buy).Mul(decimal.NewFromInt(100)).Float64()
	return ret
}
