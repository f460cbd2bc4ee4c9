package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
	"github.com/wonny/aegis-strategy/internal/pkg/jsonfile"
)

const (
	snapshotFileName = "portfolio_snapshots.json"
	snapshotKeepDays = 30   // 최근 30일만 보관
	prevValueEpsilon = 0.01 // 이 이상 변해야 prev_values 갱신
)

func (l *Ledger) snapshotPath() string {
	return filepath.Join(l.dataDir, snapshotFileName)
}

// loadSnapshots reads the store, migrating the legacy date-keyed layout.
// Missing or corrupt files yield an empty store.
func (l *Ledger) loadSnapshots() *trade.SnapshotData {
	raw, err := os.ReadFile(l.snapshotPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Msg("Failed to read snapshot store, starting empty")
		}
		return trade.NewSnapshotData()
	}

	data, err := decodeSnapshots(raw)
	if err != nil {
		log.Warn().Err(err).Msg("Corrupt snapshot store, starting empty")
		return trade.NewSnapshotData()
	}
	return data
}

func decodeSnapshots(raw []byte) (*trade.SnapshotData, error) {
	var head map[string]json.RawMessage
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	data := trade.NewSnapshotData()
	if _, ok := head["daily"]; !ok {
		// legacy: {"2026-01-05": {"ALL": 1.0}, ...}
		if err := json.Unmarshal(raw, &data.Daily); err != nil {
			return nil, fmt.Errorf("legacy snapshot: %w", err)
		}
		return data, nil
	}

	if err := json.Unmarshal(raw, data); err != nil {
		return nil, err
	}
	if data.Daily == nil {
		data.Daily = make(map[string]map[string]float64)
	}
	if data.PrevValues == nil {
		data.PrevValues = make(map[string]float64)
	}
	return data, nil
}

func (l *Ledger) saveSnapshots(data *trade.SnapshotData) error {
	if err := jsonfile.Save(l.snapshotPath(), data); err != nil {
		return fmt.Errorf("save snapshots: %w", err)
	}
	return nil
}

// Snapshots returns a copy of the persisted snapshot store
func (l *Ledger) Snapshots() *trade.SnapshotData {
	l.snapMu.Lock()
	defer l.snapMu.Unlock()
	return l.loadSnapshots()
}

// SaveDailySnapshot records today's cumulative returns keyed by strategy (and ALL).
// Weekends and days identical to the previous weekday snapshot (holidays) are skipped.
func (l *Ledger) SaveDailySnapshot(returns map[string]float64) error {
	now := l.clock.Now()
	if isWeekend(now) {
		log.Debug().Msg("Weekend, snapshot skipped")
		return nil
	}
	today := now.Format(trade.DayLayout)

	l.snapMu.Lock()
	defer l.snapMu.Unlock()

	data := l.loadSnapshots()

	earlier := earlierWeekdays(data.Daily, today)
	if len(earlier) > 0 && maps.Equal(data.Daily[earlier[0]], returns) {
		log.Info().Str("date", today).Msg("Snapshot identical to previous trading day, treated as holiday")
		return nil
	}

	for key, value := range returns {
		for _, d := range earlier {
			prev, ok := data.Daily[d][key]
			if !ok {
				continue
			}
			if math.Abs(value-prev) > prevValueEpsilon {
				data.PrevValues[key] = prev
			}
			break
		}
	}

	data.Daily[today] = maps.Clone(returns)
	pruneDaily(data, now)

	if err := l.saveSnapshots(data); err != nil {
		return err
	}

	log.Info().Str("date", today).Int("keys", len(returns)).Msg("Daily snapshot saved")
	return nil
}

// DailyChange returns current minus prev_values[key]. OK is false when no baseline exists.
func (l *Ledger) DailyChange(key string, current float64) trade.Change {
	return dailyChange(l.Snapshots(), key, current)
}

func dailyChange(data *trade.SnapshotData, key string, current float64) trade.Change {
	base, ok := data.PrevValues[key]
	if !ok {
		return trade.Change{Value: current}
	}
	return trade.Change{Value: round2(current - base), OK: true}
}

// WeeklyChange returns current minus the value on the latest trading date at least 7 days ago
func (l *Ledger) WeeklyChange(key string, current float64) trade.Change {
	return weeklyChange(l.Snapshots(), l.clock.Now(), key, current)
}

func weeklyChange(data *trade.SnapshotData, now time.Time, key string, current float64) trade.Change {
	today := now.Format(trade.DayLayout)
	target := now.AddDate(0, 0, -7).Format(trade.DayLayout)

	ref := ""
	for _, d := range tradingDates(data.Daily) {
		if d <= target && d != today {
			ref = d
		}
	}
	if ref == "" {
		return trade.Change{}
	}

	value, ok := data.Daily[ref][key]
	if !ok {
		return trade.Change{}
	}
	return trade.Change{Value: round2(current - value), BaseDate: ref, OK: true}
}

// ReturnHistory returns a strategy's cumulative return over trading dates,
// forward-filling dates after its first appearance where it is missing.
func (l *Ledger) ReturnHistory(strategyName string) []trade.ReturnPoint {
	data := l.Snapshots()

	history := []trade.ReturnPoint{}
	var last *float64
	for _, d := range tradingDates(data.Daily) {
		if v, ok := data.Daily[d][strategyName]; ok {
			last = &v
		}
		if last != nil {
			history = append(history, trade.ReturnPoint{Date: d, ReturnRate: *last})
		}
	}
	return history
}

// AllStrategies returns every key present in the snapshot store, sorted
func (l *Ledger) AllStrategies() []string {
	data := l.Snapshots()

	seen := make(map[string]bool)
	for _, returns := range data.Daily {
		for k := range returns {
			seen[k] = true
		}
	}

	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// tradingDates keeps weekdays whose values changed from the previous kept date, ascending.
// The first weekday is always kept.
func tradingDates(daily map[string]map[string]float64) []string {
	var weekdays []string
	for d := range daily {
		if isWeekday(d) {
			weekdays = append(weekdays, d)
		}
	}
	sort.Strings(weekdays)

	var trading []string
	for _, d := range weekdays {
		if len(trading) == 0 || !maps.Equal(daily[d], daily[trading[len(trading)-1]]) {
			trading = append(trading, d)
		}
	}
	return trading
}

// earlierWeekdays returns weekday dates before day, most recent first
func earlierWeekdays(daily map[string]map[string]float64, day string) []string {
	var out []string
	for d := range daily {
		if d < day && isWeekday(d) {
			out = append(out, d)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

func pruneDaily(data *trade.SnapshotData, now time.Time) {
	cutoff := now.AddDate(0, 0, -snapshotKeepDays).Format(trade.DayLayout)
	for d := range data.Daily {
		if d < cutoff {
			delete(data.Daily, d)
		}
	}
}

func isWeekday(day string) bool {
	t, err := time.Parse(trade.DayLayout, day)
	if err != nil {
		return false
	}
	return !isWeekend(t)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
