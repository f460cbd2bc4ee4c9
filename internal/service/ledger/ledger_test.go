package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
	"github.com/wonny/aegis-strategy/internal/infra/file"
	"github.com/wonny/aegis-strategy/internal/pkg/jsonfile"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type memStore struct {
	mu     sync.Mutex
	trades []trade.Trade
	saves  int
	err    error
}

func (s *memStore) Load(ctx context.Context) ([]trade.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]trade.Trade(nil), s.trades...), nil
}

func (s *memStore) Save(ctx context.Context, trades []trade.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.err != nil {
		return s.err
	}
	s.trades = append([]trade.Trade(nil), trades...)
	return nil
}

func newTestLedger(t *testing.T) (*Ledger, *memStore, *fakeClock) {
	t.Helper()
	store := &memStore{}
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	l, err := New(context.Background(), Config{Store: store, Clock: clock, DataDir: t.TempDir()})
	require.NoError(t, err)
	return l, store, clock
}

func TestLogBuy(t *testing.T) {
	ctx := context.Background()

	t.Run("records hold row", func(t *testing.T) {
		l, store, _ := newTestLedger(t)

		require.NoError(t, l.LogBuy(ctx, "TestStrategy", "005930", 70000, 1))

		trades := l.AllTrades()
		require.Len(t, trades, 1)
		assert.Equal(t, "TestStrategy", trades[0].Strategy)
		assert.Equal(t, trade.StatusHold, trades[0].Status)
		assert.Equal(t, int64(1), trades[0].Qty)
		assert.Equal(t, "2025-01-01 12:00:00", trades[0].BuyDate)
		assert.True(t, l.IsHolding("TestStrategy", "005930"))
		assert.Len(t, store.trades, 1)
	})

	t.Run("duplicate rejected", func(t *testing.T) {
		l, _, _ := newTestLedger(t)

		require.NoError(t, l.LogBuy(ctx, "StrategyA", "005930", 70000, 1))
		err := l.LogBuy(ctx, "StrategyA", "005930", 71000, 1)

		assert.True(t, errors.Is(err, trade.ErrDuplicatePosition))
		assert.Len(t, l.AllTrades(), 1)
	})

	t.Run("same code different strategy allowed", func(t *testing.T) {
		l, _, _ := newTestLedger(t)

		require.NoError(t, l.LogBuy(ctx, "S1", "005930", 70000, 1))
		require.NoError(t, l.LogBuy(ctx, "S2", "005930", 70000, 1))

		assert.Len(t, l.Holds(), 2)
	})

	t.Run("qty recorded", func(t *testing.T) {
		l, _, _ := newTestLedger(t)

		require.NoError(t, l.LogBuy(ctx, "TestStrategy", "005930", 70000, 10))
		assert.Equal(t, int64(10), l.AllTrades()[0].Qty)
	})

	t.Run("persist failure leaves table unchanged", func(t *testing.T) {
		l, store, _ := newTestLedger(t)
		store.err = errors.New("disk full")

		err := l.LogBuy(ctx, "S1", "005930", 70000, 1)
		assert.Error(t, err)
		assert.False(t, l.IsHolding("S1", "005930"))

		store.err = nil
		require.NoError(t, l.LogBuy(ctx, "S1", "005930", 70000, 1))
		assert.True(t, l.IsHolding("S1", "005930"))
	})
}

func TestLogSell(t *testing.T) {
	ctx := context.Background()

	t.Run("return rate and status", func(t *testing.T) {
		l, _, _ := newTestLedger(t)

		require.NoError(t, l.LogBuy(ctx, "StrategyA", "005930", 10000, 1))
		require.NoError(t, l.LogSell(ctx, "005930", 11000))

		got := l.AllTrades()[0]
		assert.Equal(t, trade.StatusSold, got.Status)
		assert.Equal(t, 10.0, got.ReturnRate)
		require.NotNil(t, got.SellPrice)
		assert.Equal(t, int64(11000), *got.SellPrice)
		require.NotNil(t, got.SellDate)
	})

	t.Run("rounded to two decimals", func(t *testing.T) {
		l, _, _ := newTestLedger(t)

		require.NoError(t, l.LogBuy(ctx, "S", "000660", 120000, 1))
		require.NoError(t, l.LogSell(ctx, "000660", 77000))

		assert.Equal(t, -35.83, l.AllTrades()[0].ReturnRate)
	})

	t.Run("by strategy only closes that strategy", func(t *testing.T) {
		l, _, _ := newTestLedger(t)

		require.NoError(t, l.LogBuy(ctx, "S1", "005930", 10000, 1))
		require.NoError(t, l.LogBuy(ctx, "S2", "005930", 10000, 1))
		require.NoError(t, l.LogSellByStrategy(ctx, "S1", "005930", 12000))

		assert.Empty(t, l.HoldsByStrategy("S1"))
		assert.Len(t, l.HoldsByStrategy("S2"), 1)
		assert.Len(t, l.Solds(), 1)
	})

	t.Run("no open position", func(t *testing.T) {
		l, _, _ := newTestLedger(t)

		err := l.LogSell(ctx, "005930", 10000)
		assert.True(t, errors.Is(err, trade.ErrNoOpenPosition))
	})

	t.Run("unsold rows serialize nulls", func(t *testing.T) {
		l, _, _ := newTestLedger(t)

		require.NoError(t, l.LogBuy(ctx, "S1", "005930", 70000, 1))
		got := l.AllTrades()[0]
		assert.Nil(t, got.SellPrice)
		assert.Nil(t, got.SellDate)
	})
}

func TestLogBuy_Concurrent(t *testing.T) {
	ctx := context.Background()
	store, err := file.NewTradeStore(filepath.Join(t.TempDir(), "trade_journal.csv"))
	require.NoError(t, err)

	l, err := New(ctx, Config{Store: store, Clock: &fakeClock{t: time.Now()}, DataDir: t.TempDir()})
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.LogBuy(ctx, "S1", fmt.Sprintf("%06d", i), 1000, 1))
		}(i)
	}
	wg.Wait()

	assert.Len(t, l.AllTrades(), n)

	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted, n)
}

func TestLedger_SharedStoreAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trade_journal.csv")
	clock := &fakeClock{t: time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)}

	open := func() *Ledger {
		store, err := file.NewTradeStore(path)
		require.NoError(t, err)
		l, err := New(ctx, Config{Store: store, Clock: clock, DataDir: t.TempDir()})
		require.NoError(t, err)
		return l
	}

	server := open()
	require.NoError(t, server.LogBuy(ctx, "momentum", "005930", 70000, 1))
	require.NoError(t, server.LogSellByStrategy(ctx, "momentum", "005930", 0))

	// 별도 프로세스(CLI)에서 매도가 보정
	cli := open()
	n, err := cli.FixSellPrice(ctx, "005930", "", 71000)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, server.LogBuy(ctx, "momentum", "000660", 120000, 1))

	reread := open().AllTrades()
	require.Len(t, reread, 2)
	require.NotNil(t, reread[0].SellPrice)
	assert.Equal(t, int64(71000), *reread[0].SellPrice)
	assert.Equal(t, 1.43, reread[0].ReturnRate)

	t.Run("reads see the other writer", func(t *testing.T) {
		require.NoError(t, cli.LogBuy(ctx, "other", "035420", 200000, 2))
		assert.True(t, server.IsHolding("other", "035420"))
		assert.Len(t, server.Holds(), 2)
	})

	t.Run("duplicate check uses the stored table", func(t *testing.T) {
		err := server.LogBuy(ctx, "other", "035420", 200000, 1)
		assert.ErrorIs(t, err, trade.ErrDuplicatePosition)
	})
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)

	assert.Equal(t, trade.Summary{}, l.Summary())

	require.NoError(t, l.LogBuy(ctx, "S1", "001", 1000, 1))
	require.NoError(t, l.LogSell(ctx, "001", 1200)) // +20%
	require.NoError(t, l.LogBuy(ctx, "S1", "002", 1000, 1))
	require.NoError(t, l.LogSell(ctx, "002", 900)) // -10%
	require.NoError(t, l.LogBuy(ctx, "S1", "003", 1000, 1))

	summary := l.Summary()
	assert.Equal(t, 3, summary.TotalTrades)
	assert.Equal(t, 50.0, summary.WinRate)
	assert.Equal(t, 5.0, summary.AvgReturn)
}

func TestFixSellPrice(t *testing.T) {
	ctx := context.Background()

	t.Run("fixes zero sell price", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.LogBuy(ctx, "S1", "005930", 10000, 1))
		require.NoError(t, l.LogSell(ctx, "005930", 0))

		n, err := l.FixSellPrice(ctx, "005930", "", 15000)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got := l.AllTrades()[0]
		assert.Equal(t, int64(15000), *got.SellPrice)
		assert.Equal(t, 50.0, got.ReturnRate)
	})

	t.Run("buy date narrows match", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.LogBuy(ctx, "S1", "005930", 10000, 1))
		require.NoError(t, l.LogSell(ctx, "005930", 0))

		_, err := l.FixSellPrice(ctx, "005930", "2024-12-31 09:00:00", 15000)
		assert.True(t, errors.Is(err, trade.ErrNothingToFix))
	})

	t.Run("non-zero sell price untouched", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.LogBuy(ctx, "S1", "005930", 10000, 1))
		require.NoError(t, l.LogSell(ctx, "005930", 11000))

		_, err := l.FixSellPrice(ctx, "005930", "", 15000)
		assert.True(t, errors.Is(err, trade.ErrNothingToFix))
		assert.Equal(t, 10.0, l.AllTrades()[0].ReturnRate)
	})
}

func TestReturnRate(t *testing.T) {
	assert.Equal(t, 0.0, ReturnRate(0, 1000))
	assert.Equal(t, 50.0, ReturnRate(10000, 15000))
	assert.Equal(t, -100.0, ReturnRate(10000, 0))
	assert.Equal(t, 33.33, ReturnRate(3, 4))
}

type fakeQuotes map[string]int64

func (f fakeQuotes) GetQuote(ctx context.Context, code string) (*strategy.Quote, error) {
	p, ok := f[code]
	if !ok {
		return nil, errors.New("no quote")
	}
	return &strategy.Quote{Code: code, Price: p}, nil
}

func TestCurrentReturns(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)

	require.NoError(t, l.LogBuy(ctx, "S1", "005930", 10000, 1))
	require.NoError(t, l.LogSell(ctx, "005930", 12000)) // +20
	require.NoError(t, l.LogBuy(ctx, "S1", "000660", 10000, 1))
	require.NoError(t, l.LogBuy(ctx, "S2", "035720", 10000, 1))
	require.NoError(t, l.LogBuy(ctx, "S2", "999999", 10000, 1)) // no quote

	returns := l.CurrentReturns(ctx, fakeQuotes{"000660": 11000, "035720": 9000})

	assert.Equal(t, 15.0, returns["S1"]) // (20 + 10) / 2
	assert.Equal(t, -10.0, returns["S2"])
	assert.Equal(t, 2.5, returns[trade.AllKey])
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(context.Background(), Config{Clock: &fakeClock{}})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Store: &memStore{}})
	assert.Error(t, err)
}

// writeSnapshots seeds the snapshot store for a test ledger
func writeSnapshots(t *testing.T, l *Ledger, data any) {
	t.Helper()
	require.NoError(t, jsonfile.Save(l.snapshotPath(), data))
}
