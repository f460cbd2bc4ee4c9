package trade

import (
	"time"

	"github.com/google/uuid"
)

// Trade status
const (
	StatusHold = "HOLD" // 보유 중
	StatusSold = "SOLD" // 매도 완료
)

// Key of the aggregate return across all strategies in snapshots
const AllKey = "ALL"

// Date layouts
const (
	DateTimeLayout = "2006-01-02 15:04:05"
	DayLayout      = "2006-01-02"
)

// Columns is the persisted column order of the ledger table
var Columns = []string{"strategy", "code", "buy_date", "buy_price", "qty", "sell_date", "sell_price", "return_rate", "status"}

// Trade is one open or closed position row keyed by (strategy, code)
type Trade struct {
	ID         uuid.UUID `json:"-"`
	Strategy   string    `json:"strategy"`
	Code       string    `json:"code"`
	BuyDate    string    `json:"buy_date"`
	BuyPrice   int64     `json:"buy_price"`
	Qty        int64     `json:"qty"`
	SellDate   *string   `json:"sell_date"`
	SellPrice  *int64    `json:"sell_price"`
	ReturnRate float64   `json:"return_rate"`
	Status     string    `json:"status"`
}

// IsHold reports whether the position is still open
func (t Trade) IsHold() bool {
	return t.Status == StatusHold
}

// BuyDay returns the YYYY-MM-DD part of BuyDate
func (t Trade) BuyDay() string {
	return dayOf(t.BuyDate)
}

// SellDay returns the YYYY-MM-DD part of SellDate, or "" when unsold
func (t Trade) SellDay() string {
	if t.SellDate == nil {
		return ""
	}
	return dayOf(*t.SellDate)
}

func dayOf(s string) string {
	if len(s) < len(DayLayout) {
		return s
	}
	return s[:len(DayLayout)]
}

// Summary aggregates outcome statistics over the ledger
type Summary struct {
	TotalTrades int     `json:"total_trades"`
	WinRate     float64 `json:"win_rate"`
	AvgReturn   float64 `json:"avg_return"`
}

// SnapshotData is the persisted daily snapshot store
type SnapshotData struct {
	Daily      map[string]map[string]float64 `json:"daily"`
	PrevValues map[string]float64            `json:"prev_values"`
}

// NewSnapshotData returns an empty store
func NewSnapshotData() *SnapshotData {
	return &SnapshotData{
		Daily:      make(map[string]map[string]float64),
		PrevValues: make(map[string]float64),
	}
}

// Change is a delta against a recorded baseline
type Change struct {
	Value    float64 `json:"value"`
	BaseDate string  `json:"base_date,omitempty"`
	OK       bool    `json:"ok"`
}

// ReturnPoint is one point of a strategy's cumulative return series
type ReturnPoint struct {
	Date       string  `json:"date"`
	ReturnRate float64 `json:"return_rate"`
}

// ClosePrice is one daily close for a code
type ClosePrice struct {
	Code  string
	Date  time.Time
	Close int64
}
