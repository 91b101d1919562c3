// Package caldate holds the calendar-date value type used for every date
// comparison in communitycal, plus the grid helpers for month, week and day
// views.
package caldate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date is either a valid calendar date or Invalid (the zero value).
// Malformed input never panics or guesses; it yields Invalid.
type Date struct {
	year  int
	month time.Month
	day   int
	valid bool
}

// Invalid is the "no date" variant.
var Invalid = Date{}

// New returns the date y-m-d, or Invalid if it is not a real calendar date.
func New(year int, month time.Month, day int) Date {
	if year < 1 || year > 9999 || month < time.January || month > time.December {
		return Invalid
	}
	if day < 1 || day > DaysInMonth(year, month) {
		return Invalid
	}
	return Date{year: year, month: month, day: day, valid: true}
}

// FromTime returns the calendar date of t in t's own location.
func FromTime(t time.Time) Date {
	if t.IsZero() {
		return Invalid
	}
	return New(t.Year(), t.Month(), t.Day())
}

// Parse accepts YYYY-MM-DD or DD-MM-YYYY. The format is chosen by the length
// of the first hyphen-delimited component: four characters means year-first.
func Parse(s string) Date {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return Invalid
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, ok := digits(p)
		if !ok {
			return Invalid
		}
		nums[i] = n
	}
	if len(parts[0]) == 4 {
		if len(parts[1]) > 2 || len(parts[2]) > 2 {
			return Invalid
		}
		return New(nums[0], time.Month(nums[1]), nums[2])
	}
	if len(parts[2]) != 4 || len(parts[0]) > 2 || len(parts[1]) > 2 {
		return Invalid
	}
	return New(nums[2], time.Month(nums[1]), nums[0])
}

func digits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func (d Date) Valid() bool       { return d.valid }
func (d Date) Year() int         { return d.year }
func (d Date) Month() time.Month { return d.month }
func (d Date) Day() int          { return d.day }

// String renders the canonical YYYY-MM-DD form, or "" for Invalid.
func (d Date) String() string {
	if !d.valid {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.year, d.month, d.day)
}

// DMY renders DD-MM-YYYY, or "" for Invalid.
func (d Date) DMY() string {
	if !d.valid {
		return ""
	}
	return fmt.Sprintf("%02d-%02d-%04d", d.day, d.month, d.year)
}

// In returns local midnight of d in loc. Invalid yields the zero time.
func (d Date) In(loc *time.Location) time.Time {
	if !d.valid {
		return time.Time{}
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, loc)
}

// AddDays shifts d by n days. Invalid stays Invalid.
func (d Date) AddDays(n int) Date {
	if !d.valid {
		return Invalid
	}
	return FromTime(time.Date(d.year, d.month, d.day+n, 12, 0, 0, 0, time.UTC))
}

// FirstOfMonth returns day 1 of d's month.
func (d Date) FirstOfMonth() Date {
	if !d.valid {
		return Invalid
	}
	return New(d.year, d.month, 1)
}

// Weekday of a valid date; Sunday for Invalid.
func (d Date) Weekday() time.Weekday {
	if !d.valid {
		return time.Sunday
	}
	return d.In(time.UTC).Weekday()
}

// Compare orders valid dates chronologically. Invalid sorts before any valid
// date and equal to itself.
func (d Date) Compare(o Date) int {
	switch {
	case !d.valid && !o.valid:
		return 0
	case !d.valid:
		return -1
	case !o.valid:
		return 1
	}
	if c := d.year - o.year; c != 0 {
		return sign(c)
	}
	if c := int(d.month) - int(o.month); c != 0 {
		return sign(c)
	}
	return sign(d.day - o.day)
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }
func (d Date) Equal(o Date) bool  { return d.Compare(o) == 0 }

// SameMonth reports whether both dates are valid and share year and month.
func (d Date) SameMonth(o Date) bool {
	return d.valid && o.valid && d.year == o.year && d.month == o.month
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// MarshalText lets Date travel as its canonical string in JSON.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses either accepted form; malformed text becomes Invalid.
func (d *Date) UnmarshalText(b []byte) error {
	*d = Parse(string(b))
	return nil
}
