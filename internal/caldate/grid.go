package caldate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// MonthCells returns the cells of a month grid: leading Invalid blanks so
// that day 1 lands in its weekday column, followed by every day of the month.
func MonthCells(ref Date, weekStart time.Weekday) []Date {
	if !ref.Valid() {
		return nil
	}
	first := ref.FirstOfMonth()
	lead := offset(first.Weekday(), weekStart)
	n := DaysInMonth(ref.Year(), ref.Month())

	cells := make([]Date, 0, lead+n)
	for range lead {
		cells = append(cells, Invalid)
	}
	for day := 1; day <= n; day++ {
		cells = append(cells, New(ref.Year(), ref.Month(), day))
	}
	return cells
}

// WeekDates returns the seven dates of the week containing ref.
func WeekDates(ref Date, weekStart time.Weekday) []Date {
	if !ref.Valid() {
		return nil
	}
	start := WeekStartOf(ref, weekStart)
	out := make([]Date, 7)
	for i := range out {
		out[i] = start.AddDays(i)
	}
	return out
}

// WeekStartOf returns the first day of the week containing ref.
func WeekStartOf(ref Date, weekStart time.Weekday) Date {
	if !ref.Valid() {
		return Invalid
	}
	return ref.AddDays(-offset(ref.Weekday(), weekStart))
}

func offset(wd, weekStart time.Weekday) int {
	return (int(wd) - int(weekStart) + 7) % 7
}

// HourLabels returns "00:00" through "23:00".
func HourLabels() []string {
	out := make([]string, 24)
	for h := range out {
		out[h] = FormatClock(h * 60)
	}
	return out
}

// ParseClock converts "H:MM" or "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, bool) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, false
	}
	h, ok := digits(hh)
	if !ok || h > 23 {
		return 0, false
	}
	m, ok := digits(mm)
	if !ok || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// FormatClock renders minutes since midnight as zero-padded HH:MM.
func FormatClock(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%02d:%02d", minutes/60%24, minutes%60)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts an English weekday name or its number (0 = Sunday).
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if wd, ok := weekdays[s]; ok {
		return wd, true
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), true
	}
	return time.Sunday, false
}
