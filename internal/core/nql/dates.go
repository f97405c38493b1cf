package nql

import "time"

// Month arithmetic shared by the critic, the compiler, and the resolver.
// All values are UTC dates snapped to the first of the month

const isoDate = "2006-01-02"

// ParseISODate parses YYYY-MM-DD, also tolerating a full RFC3339 timestamp
func ParseISODate(raw string) (time.Time, error) {
	if t, err := time.Parse(isoDate, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// MonthStart snaps t to the first day of its month
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts a month-start date by delta months
func AddMonths(t time.Time, delta int) time.Time {
	y := t.Year()
	m := int(t.Month()) - 1 + delta
	y += m / 12
	m = m % 12
	if m < 0 {
		m += 12
		y--
	}
	return time.Date(y, time.Month(m+1), 1, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a date as YYYY-MM-DD
func FormatDate(t time.Time) string { return t.Format(isoDate) }
