package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
)

type fakeLedger struct {
	returns  map[string]float64
	saved    []map[string]float64
	saveErr  error
	added    int
	backErr  error
	backRuns int
}

func (f *fakeLedger) CurrentReturns(ctx context.Context, quotes strategy.QuoteFetcher) map[string]float64 {
	return f.returns
}

func (f *fakeLedger) SaveDailySnapshot(returns map[string]float64) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, returns)
	return nil
}

func (f *fakeLedger) Backfill(ctx context.Context) (int, error) {
	f.backRuns++
	return f.added, f.backErr
}

type fakeCalendar struct {
	now     time.Time
	trading bool
}

func (c fakeCalendar) Now() time.Time                { return c.now }
func (c fakeCalendar) IsTradingDay(t time.Time) bool { return c.trading }

type fakeScheduler struct {
	specs map[string]string
	jobs  map[string]func(context.Context)
	err   error
}

func (s *fakeScheduler) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.specs == nil {
		s.specs = map[string]string{}
		s.jobs = map[string]func(context.Context){}
	}
	s.specs[name] = spec
	s.jobs[name] = job
	return cron.EntryID(len(s.specs)), nil
}

func TestTakeDailySnapshot(t *testing.T) {
	ctx := context.Background()
	open := fakeCalendar{now: time.Date(2025, 1, 6, 15, 40, 0, 0, time.UTC), trading: true}

	t.Run("saves current returns", func(t *testing.T) {
		l := &fakeLedger{returns: map[string]float64{"S": 2.5, "ALL": 2.5}}
		saved, err := NewService(l, nil, open).TakeDailySnapshot(ctx)

		require.NoError(t, err)
		assert.True(t, saved)
		require.Len(t, l.saved, 1)
		assert.Equal(t, 2.5, l.saved[0]["ALL"])
	})

	t.Run("holiday skipped", func(t *testing.T) {
		l := &fakeLedger{returns: map[string]float64{"S": 1, "ALL": 1}}
		saved, err := NewService(l, nil, fakeCalendar{now: open.now}).TakeDailySnapshot(ctx)

		require.NoError(t, err)
		assert.False(t, saved)
		assert.Empty(t, l.saved)
	})

	t.Run("empty ledger skipped", func(t *testing.T) {
		l := &fakeLedger{returns: map[string]float64{}}
		saved, err := NewService(l, nil, nil).TakeDailySnapshot(ctx)

		require.NoError(t, err)
		assert.False(t, saved)
	})

	t.Run("save error propagates", func(t *testing.T) {
		l := &fakeLedger{returns: map[string]float64{"S": 1, "ALL": 1}, saveErr: errors.New("disk full")}
		_, err := NewService(l, nil, open).TakeDailySnapshot(ctx)

		assert.ErrorContains(t, err, "disk full")
	})
}

func TestRunBackfill(t *testing.T) {
	l := &fakeLedger{added: 3}
	added, err := NewService(l, nil, nil).RunBackfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	l.backErr = errors.New("no trades file")
	_, err = NewService(l, nil, nil).RunBackfill(context.Background())
	assert.ErrorContains(t, err, "backfill")
}

func TestSchedule(t *testing.T) {
	l := &fakeLedger{returns: map[string]float64{"S": 1, "ALL": 1}}
	svc := NewService(l, nil, nil)

	t.Run("registers both jobs", func(t *testing.T) {
		sched := &fakeScheduler{}
		require.NoError(t, svc.Schedule(sched, "0 40 15 * * MON-FRI", "0 30 8 * * MON-FRI"))

		assert.Equal(t, "0 40 15 * * MON-FRI", sched.specs["daily-snapshot"])
		assert.Equal(t, "0 30 8 * * MON-FRI", sched.specs["snapshot-backfill"])

		sched.jobs["daily-snapshot"](context.Background())
		sched.jobs["snapshot-backfill"](context.Background())
		assert.Len(t, l.saved, 1)
		assert.Equal(t, 1, l.backRuns)
	})

	t.Run("empty spec disables job", func(t *testing.T) {
		sched := &fakeScheduler{}
		require.NoError(t, svc.Schedule(sched, "", "0 30 8 * * MON-FRI"))
		assert.NotContains(t, sched.specs, "daily-snapshot")
	})

	t.Run("registration error", func(t *testing.T) {
		sched := &fakeScheduler{err: errors.New("bad spec")}
		assert.ErrorContains(t, svc.Schedule(sched, "x", ""), "schedule daily snapshot")
	})
}
