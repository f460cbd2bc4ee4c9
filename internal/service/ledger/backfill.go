package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
	"github.com/wonny/aegis-strategy/internal/pkg/jsonfile"
)

const priceCacheFileName = "close_price_cache.json"

// priceCache maps code -> YYYY-MM-DD -> close
type priceCache map[string]map[string]int64

func (l *Ledger) priceCachePath() string {
	return filepath.Join(l.dataDir, priceCacheFileName)
}

func (l *Ledger) loadPriceCache() priceCache {
	cache := priceCache{}
	if _, err := jsonfile.Load(l.priceCachePath(), &cache); err != nil {
		log.Warn().Err(err).Msg("Close price cache unreadable, starting empty")
		return priceCache{}
	}
	return cache
}

// Backfill reconstructs daily snapshots for days between the first and last trade day
// that have none. Existing snapshots are never overwritten. Returns the number of days added.
func (l *Ledger) Backfill(ctx context.Context) (int, error) {
	trades := l.AllTrades()
	if len(trades) == 0 {
		return 0, nil
	}

	minDay, maxDay := "", ""
	for _, t := range trades {
		for _, d := range []string{t.BuyDay(), t.SellDay()} {
			if d == "" {
				continue
			}
			if minDay == "" || d < minDay {
				minDay = d
			}
			if d > maxDay {
				maxDay = d
			}
		}
	}

	days, err := dayRange(minDay, maxDay)
	if err != nil {
		return 0, err
	}

	l.snapMu.Lock()
	defer l.snapMu.Unlock()

	data := l.loadSnapshots()

	var missing []string
	for _, d := range days {
		if _, ok := data.Daily[d]; !ok {
			missing = append(missing, d)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	codes := uniqueCodes(trades)
	cache := l.closePrices(ctx, codes, minDay, maxDay)

	byStrategy := make(map[string][]trade.Trade)
	var strategies []string
	for _, t := range trades {
		if _, ok := byStrategy[t.Strategy]; !ok {
			strategies = append(strategies, t.Strategy)
		}
		byStrategy[t.Strategy] = append(byStrategy[t.Strategy], t)
	}
	sort.Strings(strategies)

	added := 0
	for _, day := range missing {
		returns := make(map[string]float64)
		var strategyAvgs []float64

		for _, name := range strategies {
			var rates []float64
			for _, t := range byStrategy[name] {
				if t.BuyDay() > day {
					continue
				}
				rates = append(rates, returnOnDay(t, day, cache))
			}
			if len(rates) == 0 {
				continue
			}
			avg := average(rates)
			returns[name] = avg
			strategyAvgs = append(strategyAvgs, avg)
		}

		if len(returns) == 0 {
			continue
		}
		returns[trade.AllKey] = average(strategyAvgs)
		data.Daily[day] = returns
		added++
	}

	if added == 0 {
		return 0, nil
	}

	pruneDaily(data, l.clock.Now())
	if err := l.saveSnapshots(data); err != nil {
		return 0, err
	}

	log.Info().Int("days", added).Msg("✅ Snapshot backfill completed")
	return added, nil
}

// returnOnDay is the confirmed return when sold by day, otherwise the close-based return
// for day, the nearest earlier close, or 0.
func returnOnDay(t trade.Trade, day string, cache priceCache) float64 {
	if sellDay := t.SellDay(); sellDay != "" && sellDay <= day {
		return t.ReturnRate
	}
	if t.BuyPrice == 0 {
		return 0
	}
	if closePrice, ok := cache[t.Code][day]; ok && closePrice > 0 {
		return ReturnRate(t.BuyPrice, closePrice)
	}
	if closePrice, ok := prevClose(cache, t.Code, day); ok {
		return ReturnRate(t.BuyPrice, closePrice)
	}
	return 0
}

// prevClose finds the closest close strictly before day
func prevClose(cache priceCache, code, day string) (int64, bool) {
	best := ""
	for d := range cache[code] {
		if d < day && d > best {
			best = d
		}
	}
	if best == "" {
		return 0, false
	}
	closePrice := cache[code][best]
	return closePrice, closePrice > 0
}

// closePrices returns the cache after filling codes whose weekday range is incomplete.
// Fetch failures are logged and skipped.
func (l *Ledger) closePrices(ctx context.Context, codes []string, fromDay, toDay string) priceCache {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()

	cache := l.loadPriceCache()
	if l.closes == nil {
		return cache
	}

	from, _ := time.ParseInLocation(trade.DayLayout, fromDay, time.Local)
	to, _ := time.ParseInLocation(trade.DayLayout, toDay, time.Local)
	needed, _ := dayRange(fromDay, toDay)

	fetched := 0
	for _, code := range codes {
		if hasWeekdays(cache[code], needed) {
			continue
		}

		v, err, _ := l.sf.Do(code+":"+fromDay+":"+toDay, func() (interface{}, error) {
			return l.closes.FetchDailyCloses(ctx, code, from, to)
		})
		if err != nil {
			log.Warn().Err(err).Str("code", code).Msg("Close price fetch failed")
			continue
		}

		prices := v.([]trade.ClosePrice)
		if len(prices) == 0 {
			continue
		}
		if cache[code] == nil {
			cache[code] = make(map[string]int64)
		}
		for _, p := range prices {
			cache[code][p.Date.Format(trade.DayLayout)] = p.Close
		}
		fetched++
	}

	if fetched > 0 {
		if err := jsonfile.Save(l.priceCachePath(), cache); err != nil {
			log.Error().Err(err).Msg("Failed to save close price cache")
		} else {
			log.Info().Int("codes", fetched).Msg("Close price cache updated")
		}
	}
	return cache
}

func hasWeekdays(prices map[string]int64, days []string) bool {
	if prices == nil {
		return false
	}
	for _, d := range days {
		if !isWeekday(d) {
			continue
		}
		if _, ok := prices[d]; !ok {
			return false
		}
	}
	return true
}

// dayRange lists every calendar day from..to inclusive
func dayRange(fromDay, toDay string) ([]string, error) {
	from, err := time.Parse(trade.DayLayout, fromDay)
	if err != nil {
		return nil, fmt.Errorf("parse day %q: %w", fromDay, err)
	}
	to, err := time.Parse(trade.DayLayout, toDay)
	if err != nil {
		return nil, fmt.Errorf("parse day %q: %w", toDay, err)
	}

	var days []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(trade.DayLayout))
	}
	return days, nil
}

func uniqueCodes(trades []trade.Trade) []string {
	seen := make(map[string]bool)
	var codes []string
	for _, t := range trades {
		if !seen[t.Code] {
			seen[t.Code] = true
			codes = append(codes, t.Code)
		}
	}
	return codes
}
