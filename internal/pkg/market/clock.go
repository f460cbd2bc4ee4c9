// Package market provides the KRX trading calendar used by the scheduler.
package market

import (
	"time"
)

// KRX regular session (KST)
const (
	openHour    = 9
	openMinute  = 0
	closeHour   = 15
	closeMinute = 30
)

// Clock is the time/market contract consumed by the scheduler and ledger
type Clock interface {
	Now() time.Time
	IsMarketOpen(t time.Time) bool
	MarketCloseTime(t time.Time) time.Time
}

// KST returns the Asia/Seoul location, falling back to a fixed +09:00 zone
func KST() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// KRXClock implements Clock for the Korea Exchange
type KRXClock struct {
	loc      *time.Location
	holidays map[string]bool
	now      func() time.Time
}

// NewKRXClock creates a clock with the given market holidays (YYYY-MM-DD)
func NewKRXClock(holidays []string) *KRXClock {
	h := make(map[string]bool, len(holidays))
	for _, d := range holidays {
		h[d] = true
	}
	return &KRXClock{
		loc:      KST(),
		holidays: h,
		now:      time.Now,
	}
}

// Now returns the current time in KST
func (c *KRXClock) Now() time.Time {
	return c.now().In(c.loc)
}

// IsTradingDay reports whether t falls on a weekday that is not a holiday
func (c *KRXClock) IsTradingDay(t time.Time) bool {
	t = t.In(c.loc)
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.holidays[t.Format("2006-01-02")]
}

// IsMarketOpen reports whether t is inside the regular session
func (c *KRXClock) IsMarketOpen(t time.Time) bool {
	t = t.In(c.loc)
	if !c.IsTradingDay(t) {
		return false
	}
	open := time.Date(t.Year(), t.Month(), t.Day(), openHour, openMinute, 0, 0, c.loc)
	return !t.Before(open) && t.Before(c.MarketCloseTime(t))
}

// MarketCloseTime returns the session close on t's date
func (c *KRXClock) MarketCloseTime(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), closeHour, closeMinute, 0, 0, c.loc)
}
