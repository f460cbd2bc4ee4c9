package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/aegis-strategy/internal/infra/kis"
	"github.com/wonny/aegis-strategy/internal/infra/naver"
	"github.com/wonny/aegis-strategy/internal/pkg/config"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Scheduler: config.SchedulerConfig{DryRun: true, DataDir: dir},
		Ledger:    config.LedgerConfig{Backend: "csv", JournalPath: filepath.Join(dir, "ledger", "trade_journal.csv")},
		KIS:       config.KISConfig{IsPaper: true},
	}
}

func TestOpenLedger_CSV(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	l, err := OpenLedger(ctx, cfg, fixedClock{time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	defer l.Close()

	assert.Nil(t, l.Pool)
	require.NoError(t, l.LogBuy(ctx, "momentum", "005930", 70000, 1))

	reopened, err := OpenLedger(ctx, cfg, fixedClock{})
	require.NoError(t, err)
	assert.Len(t, reopened.Holds(), 1)
}

func TestOpenBroker(t *testing.T) {
	cfg := testConfig(t)

	b, err := OpenBroker(cfg)
	require.NoError(t, err)
	assert.Nil(t, b.Gateway)
	assert.IsType(t, &naver.QuoteClient{}, b.Quotes)

	cfg.Scheduler.DryRun = false
	_, err = OpenBroker(cfg)
	assert.Error(t, err)

	cfg.KIS = config.KISConfig{AppKey: "k", AppSecret: "s", AccountNo: "12345678-01", IsPaper: true}
	b, err = OpenBroker(cfg)
	require.NoError(t, err)
	assert.IsType(t, &kis.Gateway{}, b.Gateway)
	assert.Same(t, b.Gateway, b.Quotes)
}
