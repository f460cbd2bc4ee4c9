package scheduler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
)

// DefaultHistorySize is the number of executed signals kept in memory
const DefaultHistorySize = 200

var historyColumns = []string{"strategy_name", "code", "name", "action", "price", "reason", "timestamp", "api_success"}

// History is a bounded, append-only record of executed signals.
// The in-memory ring holds the newest entries; every record is also appended to a CSV file.
type History struct {
	mu       sync.RWMutex
	records  []strategy.SignalRecord
	capacity int
	path     string
}

// NewHistory loads the newest capacity records from path. An empty path keeps history in memory only.
func NewHistory(path string, capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	h := &History{capacity: capacity, path: path}

	if path == "" {
		return h
	}
	records, err := readHistory(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to load signal history")
		return h
	}
	if len(records) > capacity {
		records = records[len(records)-capacity:]
	}
	h.records = records
	log.Info().Int("records", len(records)).Msg("Signal history loaded")
	return h
}

// Add appends a record, evicting the oldest when full
func (h *History) Add(r strategy.SignalRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, r)
	if over := len(h.records) - h.capacity; over > 0 {
		h.records = append(h.records[:0:0], h.records[over:]...)
	}

	if h.path == "" {
		return
	}
	if err := appendHistory(h.path, r); err != nil {
		log.Warn().Err(err).Str("path", h.path).Msg("Failed to append signal history")
	}
}

// Records returns records newest first. An empty strategyName returns all.
func (h *History) Records(strategyName string) []strategy.SignalRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]strategy.SignalRecord, 0, len(h.records))
	for i := len(h.records) - 1; i >= 0; i-- {
		if strategyName != "" && h.records[i].StrategyName != strategyName {
			continue
		}
		out = append(out, h.records[i])
	}
	return out
}

// Len returns the number of records held in memory
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

func readHistory(path string) ([]strategy.SignalRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}
	field := func(row []string, col string) string {
		if i, ok := idx[col]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	var records []strategy.SignalRecord
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records, fmt.Errorf("read row: %w", err)
		}

		price, _ := strconv.ParseFloat(field(row, "price"), 64)
		success := field(row, "api_success")
		records = append(records, strategy.SignalRecord{
			Timestamp:    field(row, "timestamp"),
			StrategyName: field(row, "strategy_name"),
			Code:         field(row, "code"),
			Name:         field(row, "name"),
			Action:       field(row, "action"),
			Price:        int64(price),
			Reason:       field(row, "reason"),
			APISuccess:   success == "" || strings.EqualFold(success, "true"),
		})
	}
	return records, nil
}

func appendHistory(path string, r strategy.SignalRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	_, statErr := os.Stat(path)
	writeHeader := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(historyColumns); err != nil {
			return err
		}
	}
	if err := w.Write([]string{
		r.StrategyName,
		r.Code,
		r.Name,
		r.Action,
		strconv.FormatInt(r.Price, 10),
		r.Reason,
		r.Timestamp,
		strconv.FormatBool(r.APISuccess),
	}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
