package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/pkg/config"
)

// Calendar implements the market-calendar oracle: trading-day predicate,
// next-trading-day lookup, and the fixed-cutoff window math that validity
// and quota share.
// ⭐ SSOT: 거래일/컷오프 계산은 여기서만
type Calendar struct {
	loc          *time.Location
	cutoffHour   int
	cutoffMinute int
	holidays     map[string]bool // "2006-01-02" in market tz
}

// NewCalendar builds a calendar from config. Holidays are a comma-separated
// list of closed dates.
func NewCalendar(cfg config.CalendarConfig) (*Calendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid market timezone %q: %w", cfg.Timezone, err)
	}

	holidays := make(map[string]bool)
	for _, d := range strings.Split(cfg.Holidays, ",") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, err := time.ParseInLocation("2006-01-02", d, loc); err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", d, err)
		}
		holidays[d] = true
	}

	return &Calendar{
		loc:          loc,
		cutoffHour:   cfg.CutoffHour,
		cutoffMinute: cfg.CutoffMinute,
		holidays:     holidays,
	}, nil
}

// Location returns the market timezone
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsTradingDay reports whether the date (in market tz) is a trading day
func (c *Calendar) IsTradingDay(date time.Time) bool {
	d := date.In(c.loc)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[d.Format("2006-01-02")]
}

// NextTradingDay returns the first trading day strictly after date
func (c *Calendar) NextTradingDay(date time.Time) time.Time {
	d := date.In(c.loc)
	for {
		d = d.AddDate(0, 0, 1)
		if c.IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.loc)
		}
	}
}

// CutoffOn returns the session cutoff instant on the given date
func (c *Calendar) CutoffOn(date time.Time) time.Time {
	d := date.In(c.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), c.cutoffHour, c.cutoffMinute, 0, 0, c.loc)
}

// ValidUntil returns the expiry for a result produced at now: the first
// trading-day cutoff strictly after now. A result produced late in a session
// stays valid through the next session; one produced in the morning expires
// at the same day's cutoff.
func (c *Calendar) ValidUntil(now time.Time) time.Time {
	d := now.In(c.loc)
	if c.IsTradingDay(d) {
		cutoff := c.CutoffOn(d)
		if now.Before(cutoff) {
			return cutoff
		}
	}
	next := c.NextTradingDay(d)
	return c.CutoffOn(next)
}

// WindowFor returns the rolling quota window containing now: from the last
// trading-day cutoff at or before now through the next one after it.
func (c *Calendar) WindowFor(now time.Time) contracts.QuotaWindow {
	end := c.ValidUntil(now)

	// Walk back to the previous trading-day cutoff <= now
	start := end
	d := now.In(c.loc)
	for {
		if c.IsTradingDay(d) {
			cutoff := c.CutoffOn(d)
			if !cutoff.After(now) {
				start = cutoff
				break
			}
		}
		d = d.AddDate(0, 0, -1)
	}

	return contracts.QuotaWindow{Start: start, End: end}
}

// WindowKey names a window for quota storage
func (c *Calendar) WindowKey(w contracts.QuotaWindow) string {
	return w.Start.In(c.loc).Format("20060102_1504")
}
