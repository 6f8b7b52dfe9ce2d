package parse

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the only date wire format accepted anywhere in the system.
const DateLayout = "2006-01-02"

// MonthLayout is the wire format of a calendar month.
const MonthLayout = "2006-01"

var (
	dateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	monthRe = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

// ParseDate parses a strict YYYY-MM-DD calendar date in UTC.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if !dateRe.MatchString(s) {
		return time.Time{}, fmt.Errorf("date %q must be formatted as YYYY-MM-DD", raw)
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not a calendar date", raw)
	}
	return t, nil
}

// IsDate reports whether raw is a valid YYYY-MM-DD date.
func IsDate(raw string) bool {
	_, err := ParseDate(raw)
	return err == nil
}

// FormatDate renders t as YYYY-MM-DD, ignoring any time component.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// NewMonth validates year and month.
func NewMonth(year int, month time.Month) (Month, error) {
	if year < 1 || year > 9999 {
		return Month{}, fmt.Errorf("year %d out of range", year)
	}
	if month < time.January || month > time.December {
		return Month{}, fmt.Errorf("month %d out of range", month)
	}
	return Month{Year: year, Month: month}, nil
}

// ParseMonth parses a strict YYYY-MM month.
func ParseMonth(raw string) (Month, error) {
	s := strings.TrimSpace(raw)
	if !monthRe.MatchString(s) {
		return Month{}, fmt.Errorf("month %q must be formatted as YYYY-MM", raw)
	}
	t, err := time.ParseInLocation(MonthLayout, s, time.UTC)
	if err != nil {
		return Month{}, fmt.Errorf("month %q is not a calendar month", raw)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the month a YYYY-MM-DD date belongs to.
func MonthOf(date string) (Month, bool) {
	t, err := ParseDate(date)
	if err != nil {
		return Month{}, false
	}
	return Month{Year: t.Year(), Month: t.Month()}, true
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// First returns the first day of the month as YYYY-MM-DD.
func (m Month) First() string {
	return FormatDate(time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC))
}

// Last returns the last day of the month as YYYY-MM-DD.
func (m Month) Last() string {
	return FormatDate(time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC))
}

// Contains reports whether date falls inside the month. Malformed dates never do.
func (m Month) Contains(date string) bool {
	got, ok := MonthOf(date)
	return ok && got == m
}

// Days lists every date from..to inclusive. Malformed bounds or from > to yield nil.
func Days(from, to string) []string {
	start, err := ParseDate(from)
	if err != nil {
		return nil
	}
	end, err := ParseDate(to)
	if err != nil || end.Before(start) {
		return nil
	}
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, FormatDate(d))
	}
	return days
}

// ParseMaxAllowed converts a wire number into a headcount cap. Integral
// floats such as "3.0" are coerced; fractional or negative values are rejected.
func ParseMaxAllowed(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("max_allowed %d must not be negative", n)
		}
		return int(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("max_allowed %q is not a number", raw)
	}
	if f < 0 {
		return 0, fmt.Errorf("max_allowed %q must not be negative", raw)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("max_allowed %q must be a whole number", raw)
	}
	if f > math.MaxInt32 {
		return 0, fmt.Errorf("max_allowed %q is too large", raw)
	}
	return int(f), nil
}
