package market

import (
	"testing"
	"time"
)

func TestKRXClock_IsMarketOpen(t *testing.T) {
	clock := NewKRXClock([]string{"2026-01-01"})
	kst := KST()

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"weekday morning before open", time.Date(2026, 1, 5, 8, 59, 0, 0, kst), false},
		{"weekday at open", time.Date(2026, 1, 5, 9, 0, 0, 0, kst), true},
		{"weekday midday", time.Date(2026, 1, 5, 13, 0, 0, 0, kst), true},
		{"weekday at close", time.Date(2026, 1, 5, 15, 30, 0, 0, kst), false},
		{"saturday", time.Date(2026, 1, 3, 10, 0, 0, 0, kst), false},
		{"holiday", time.Date(2026, 1, 1, 10, 0, 0, 0, kst), false},
		{"utc input converted", time.Date(2026, 1, 5, 1, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clock.IsMarketOpen(tt.t); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestKRXClock_MarketCloseTime(t *testing.T) {
	clock := NewKRXClock(nil)
	kst := KST()

	now := time.Date(2026, 1, 5, 15, 20, 0, 0, kst)
	closeAt := clock.MarketCloseTime(now)

	if got := closeAt.Sub(now); got != 10*time.Minute {
		t.Errorf("Expected 10m to close, got %s", got)
	}
}
