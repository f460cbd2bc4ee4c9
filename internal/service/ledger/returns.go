package ledger

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
)

// CurrentReturns computes each strategy's average return (SOLD confirmed, HOLD at the
// current quote) plus ALL. Holdings whose quote cannot be fetched are left out.
func (l *Ledger) CurrentReturns(ctx context.Context, quotes strategy.QuoteFetcher) map[string]float64 {
	byStrategy := make(map[string][]float64)
	priceOf := make(map[string]int64)

	for _, t := range l.AllTrades() {
		if t.Status == trade.StatusSold {
			byStrategy[t.Strategy] = append(byStrategy[t.Strategy], t.ReturnRate)
			continue
		}

		price, ok := priceOf[t.Code]
		if !ok {
			q, err := quotes.GetQuote(ctx, t.Code)
			if err != nil || q == nil || q.Price <= 0 {
				log.Warn().Err(err).Str("code", t.Code).Msg("Quote unavailable, holding excluded from returns")
				priceOf[t.Code] = 0
				continue
			}
			price = q.Price
			priceOf[t.Code] = price
		}
		if price == 0 {
			continue
		}
		byStrategy[t.Strategy] = append(byStrategy[t.Strategy], ReturnRate(t.BuyPrice, price))
	}

	names := make([]string, 0, len(byStrategy))
	for name := range byStrategy {
		names = append(names, name)
	}
	sort.Strings(names)

	returns := make(map[string]float64, len(names)+1)
	var avgs []float64
	for _, name := range names {
		avg := average(byStrategy[name])
		returns[name] = avg
		avgs = append(avgs, avg)
	}
	if len(avgs) > 0 {
		returns[trade.AllKey] = average(avgs)
	}
	return returns
}
