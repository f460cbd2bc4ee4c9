package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
)

func record(name string, i int) strategy.SignalRecord {
	return strategy.SignalRecord{
		StrategyName: name,
		Code:         fmt.Sprintf("%06d", i),
		Action:       strategy.ActionBuy,
		Price:        int64(1000 + i),
		Reason:       "reason, with comma",
		Timestamp:    "2025-01-06 10:00:00",
		APISuccess:   i%2 == 0,
	}
}

func TestHistory_RingBuffer(t *testing.T) {
	h := NewHistory("", 3)
	for i := 0; i < 5; i++ {
		h.Add(record("S", i))
	}

	records := h.Records("")
	require.Len(t, records, 3)
	assert.Equal(t, "000004", records[0].Code)
	assert.Equal(t, "000002", records[2].Code)
}

func TestHistory_Filter(t *testing.T) {
	h := NewHistory("", DefaultHistorySize)
	h.Add(record("A", 1))
	h.Add(record("B", 2))
	h.Add(record("A", 3))

	records := h.Records("A")
	require.Len(t, records, 2)
	assert.Equal(t, "000003", records[0].Code)
	assert.Equal(t, "000001", records[1].Code)
	assert.Empty(t, h.Records("C"))
}

func TestHistory_PersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal_history.csv")

	h := NewHistory(path, 10)
	for i := 0; i < 15; i++ {
		h.Add(record("S", i))
	}
	assert.Equal(t, 10, h.Len())

	reloaded := NewHistory(path, 10)
	records := reloaded.Records("")
	require.Len(t, records, 10, "only the newest capacity rows are loaded")
	assert.Equal(t, record("S", 14), records[0])
	assert.Equal(t, record("S", 5), records[9])
}

func TestHistory_LegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal_history.csv")
	content := "timestamp,strategy_name,code,name,action,price,reason,api_success\n" +
		"2025-01-02 09:10:00,S,005930,삼성전자,BUY,70000.0,gap up,True\n" +
		"2025-01-02 09:20:00,S,000660,SK하이닉스,SELL,180000,stop,False\n" +
		"2025-01-02 09:30:00,S,035720,카카오,BUY,40000,x,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	records := NewHistory(path, 10).Records("")
	require.Len(t, records, 3)
	assert.True(t, records[0].APISuccess, "missing api_success defaults to true")
	assert.False(t, records[1].APISuccess)
	assert.True(t, records[2].APISuccess)
	assert.Equal(t, int64(70000), records[2].Price)
	assert.Equal(t, "삼성전자", records[2].Name)
}
