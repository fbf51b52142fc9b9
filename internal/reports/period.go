package reports

import (
	"errors"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var ErrInvalidRange = errors.New("invalid date range")

// Period is an inclusive range of calendar days.
type Period struct {
	From time.Time // 00:00 of the first day
	To   time.Time // 00:00 of the last day
}

// End is the exclusive upper bound.
func (p Period) End() time.Time { return p.To.AddDate(0, 0, 1) }

func (p Period) Contains(t time.Time) bool {
	t = t.In(p.From.Location())
	return !t.Before(p.From) && t.Before(p.End())
}

func (p Period) String() string {
	return p.From.Format(dateLayout) + " to " + p.To.Format(dateLayout)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// PresetPeriod resolves TODAY, WEEK (last 7 days), MONTH, LAST_MONTH and YTD.
func PresetPeriod(preset string, now time.Time) (Period, bool) {
	today := midnight(now)
	switch strings.ToUpper(strings.TrimSpace(preset)) {
	case "TODAY":
		return Period{From: today, To: today}, true
	case "WEEK":
		return Period{From: today.AddDate(0, 0, -6), To: today}, true
	case "MONTH":
		return Period{From: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), To: today}, true
	case "LAST_MONTH":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return Period{From: first.AddDate(0, -1, 0), To: first.AddDate(0, 0, -1)}, true
	case "YTD":
		return Period{From: time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()), To: today}, true
	}
	return Period{}, false
}

// ParsePeriod reads a preset or from/to (YYYY-MM-DD). Missing bounds default to today.
func ParsePeriod(preset, from, to string, now time.Time) (Period, error) {
	if preset != "" && !strings.EqualFold(preset, "CUSTOM") {
		p, ok := PresetPeriod(preset, now)
		if !ok {
			return Period{}, ErrInvalidRange
		}
		return p, nil
	}

	p := Period{From: midnight(now), To: midnight(now)}
	if from != "" {
		d, err := time.ParseInLocation(dateLayout, from, now.Location())
		if err != nil {
			return Period{}, ErrInvalidRange
		}
		p.From = d
	}
	if to != "" {
		d, err := time.ParseInLocation(dateLayout, to, now.Location())
		if err != nil {
			return Period{}, ErrInvalidRange
		}
		p.To = d
	}
	if p.To.Before(p.From) {
		return Period{}, ErrInvalidRange
	}
	return p, nil
}
