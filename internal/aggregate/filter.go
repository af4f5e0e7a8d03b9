package aggregate

import (
	"strings"
	"time"

	"salonledger/backend/internal/domain"
)

const DateLayout = "2006-01-02"

// DateRange is a half-open instant interval [From, To). Zero bounds are open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// ParseDateFilter turns the caller's exact date or inclusive day range into instants in
// loc. An exact date cannot be combined with a range, and from must not follow to.
func ParseDateFilter(filter domain.ReportFilter, loc *time.Location) (DateRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	date := strings.TrimSpace(filter.Date)
	from := strings.TrimSpace(filter.From)
	to := strings.TrimSpace(filter.To)

	if date != "" {
		if from != "" || to != "" {
			return DateRange{}, domain.Aggregationf("date cannot be combined with from/to")
		}
		day, err := parseDay("date", date, loc)
		if err != nil {
			return DateRange{}, err
		}
		return DateRange{From: day, To: day.AddDate(0, 0, 1)}, nil
	}

	var rng DateRange
	if from != "" {
		day, err := parseDay("from", from, loc)
		if err != nil {
			return DateRange{}, err
		}
		rng.From = day
	}
	if to != "" {
		day, err := parseDay("to", to, loc)
		if err != nil {
			return DateRange{}, err
		}
		rng.To = day.AddDate(0, 0, 1)
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && !rng.From.Before(rng.To) {
		return DateRange{}, domain.Aggregationf("from %s is after to %s", from, to)
	}
	return rng, nil
}

func parseDay(field string, value string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, domain.Aggregationf("%s must be YYYY-MM-DD", field)
	}
	return day, nil
}

// DayKey is the calendar date of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}
