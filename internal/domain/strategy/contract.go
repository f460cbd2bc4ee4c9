package strategy

import (
	"context"

	"github.com/wonny/aegis-strategy/internal/domain/trade"
)

// Strategy is a pluggable decision unit driven by the scheduler.
type Strategy interface {
	// Name is the unique strategy name (ledger "strategy" column)
	Name() string

	// Scan searches the market and returns BUY candidates
	Scan(ctx context.Context) ([]TradeSignal, error)

	// CheckExits inspects the strategy's open positions and returns SELL signals
	CheckExits(ctx context.Context, holdings []trade.Trade) ([]TradeSignal, error)
}

// OrderGateway places real or paper orders with the broker.
// A non-success result is reported through OrderResult, transport failures through error.
type OrderGateway interface {
	PlaceBuyOrder(ctx context.Context, code string, price, qty int64) (*OrderResult, error)
	PlaceSellOrder(ctx context.Context, code string, price, qty int64) (*OrderResult, error)
}

// QuoteFetcher resolves the current price of a code
type QuoteFetcher interface {
	GetQuote(ctx context.Context, code string) (*Quote, error)
}
