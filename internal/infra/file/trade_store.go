package file

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
)

// TradeStore implements trade.Store on a CSV file
type TradeStore struct {
	path string
	mu   sync.Mutex
}

// NewTradeStore creates the store, writing a header-only file if none exists
func NewTradeStore(path string) (*TradeStore, error) {
	s := &TradeStore{path: path}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.Save(context.Background(), nil); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the backing file path
func (s *TradeStore) Path() string {
	return s.path
}

// Load reads every row. Missing optional columns are default-filled here and nowhere else.
func (s *TradeStore) Load(ctx context.Context) ([]trade.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}

	var trades []trade.Trade
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}

		get := func(col string) string {
			if i, ok := idx[col]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		t := trade.Trade{
			ID:         uuid.New(),
			Strategy:   get("strategy"),
			Code:       get("code"),
			BuyDate:    get("buy_date"),
			BuyPrice:   parsePrice(get("buy_price")),
			Qty:        1,
			ReturnRate: parseRate(get("return_rate")),
			Status:     get("status"),
		}
		if q := parsePrice(get("qty")); q > 0 {
			t.Qty = q
		}
		if d := get("sell_date"); !isNull(d) {
			t.SellDate = &d
		}
		if p := get("sell_price"); !isNull(p) {
			v := parsePrice(p)
			t.SellPrice = &v
		}
		trades = append(trades, t)
	}

	return trades, nil
}

// Save rewrites the whole file atomically
func (s *TradeStore) Save(ctx context.Context, trades []trade.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(trade.Columns); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range trades {
		if err := w.Write(encodeRow(t)); err != nil {
			tmp.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

func encodeRow(t trade.Trade) []string {
	sellDate, sellPrice := "", ""
	if t.SellDate != nil {
		sellDate = *t.SellDate
	}
	if t.SellPrice != nil {
		sellPrice = strconv.FormatInt(*t.SellPrice, 10)
	}
	return []string{
		t.Strategy,
		t.Code,
		t.BuyDate,
		strconv.FormatInt(t.BuyPrice, 10),
		strconv.FormatInt(t.Qty, 10),
		sellDate,
		sellPrice,
		strconv.FormatFloat(t.ReturnRate, 'f', -1, 64),
		t.Status,
	}
}

// isNull treats empty and NaN-like cells as missing
func isNull(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "none", "null":
		return true
	}
	return false
}

// parsePrice accepts "56000" and float renderings like "56000.0"
func parsePrice(s string) int64 {
	if isNull(s) {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return int64(math.Round(f))
}

func parseRate(s string) float64 {
	if isNull(s) {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
