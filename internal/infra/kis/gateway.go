package kis

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
)

// Gateway adapts the KIS REST client to the scheduler's order and quote contracts
type Gateway struct {
	rest        *RESTClient
	accountNo   string
	productCode string
}

var (
	_ strategy.OrderGateway = (*Gateway)(nil)
	_ strategy.QuoteFetcher = (*Gateway)(nil)
)

// NewGateway creates a Gateway for the configured account
func NewGateway(client *Client, cfg Config) (*Gateway, error) {
	accountNo, productCode, err := splitAccount(cfg.AccountNo)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		rest:        client.REST,
		accountNo:   accountNo,
		productCode: productCode,
	}, nil
}

// PlaceBuyOrder submits a cash buy
func (g *Gateway) PlaceBuyOrder(ctx context.Context, code string, price, qty int64) (*strategy.OrderResult, error) {
	return g.place(ctx, strategy.ActionBuy, code, price, qty)
}

// PlaceSellOrder submits a cash sell
func (g *Gateway) PlaceSellOrder(ctx context.Context, code string, price, qty int64) (*strategy.OrderResult, error) {
	return g.place(ctx, strategy.ActionSell, code, price, qty)
}

func (g *Gateway) place(ctx context.Context, action, code string, price, qty int64) (*strategy.OrderResult, error) {
	result, err := g.rest.PlaceCashOrder(ctx, g.accountNo, g.productCode, code, action, price, qty)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("action", action).
		Str("code", code).
		Int64("price", price).
		Int64("qty", qty).
		Str("rt_cd", result.RtCd).
		Str("order_no", result.OrderNo).
		Msg("KIS order response")
	return result, nil
}

// GetQuote fetches the current price
func (g *Gateway) GetQuote(ctx context.Context, code string) (*strategy.Quote, error) {
	return g.rest.GetQuote(ctx, code)
}
