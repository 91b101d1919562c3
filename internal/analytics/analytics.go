// Package analytics buckets filtered events for the analytics panel.
package analytics

import (
	"fmt"
	"sort"
	"strings"

	"communitycal/internal/caldate"
	"communitycal/internal/model"
)

type Granularity string

const (
	Daily  Granularity = "daily"
	Hourly Granularity = "hourly"
	Weekly Granularity = "weekly"
)

// ParseGranularity defaults to Daily for empty or unknown input.
func ParseGranularity(s string) Granularity {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Daily, Hourly, Weekly:
		return g
	}
	return Daily
}

// Bucket is one labelled count. Aggregations return buckets in display
// order.
type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Aggregate counts events per day, hour or week. referenceMonth may be any
// date within the month of interest; the hourly view ignores it. Events
// missing the field a bucketing needs are skipped.
func Aggregate(events []model.Event, g Granularity, referenceMonth caldate.Date) []Bucket {
	switch g {
	case Daily:
		return daily(events, referenceMonth)
	case Hourly:
		return hourly(events)
	case Weekly:
		return weekly(events, referenceMonth)
	}
	return nil
}

func daily(events []model.Event, ref caldate.Date) []Bucket {
	if !ref.Valid() {
		return nil
	}
	n := caldate.DaysInMonth(ref.Year(), ref.Month())
	buckets := make([]Bucket, n)
	for i := range buckets {
		buckets[i].Label = caldate.New(ref.Year(), ref.Month(), i+1).String()
	}
	for _, e := range events {
		if e.StartDate.SameMonth(ref) {
			buckets[e.StartDate.Day()-1].Count++
		}
	}
	return buckets
}

func hourly(events []model.Event) []Bucket {
	labels := caldate.HourLabels()
	buckets := make([]Bucket, len(labels))
	for i, l := range labels {
		buckets[i].Label = l
	}
	for _, e := range events {
		if m, ok := caldate.ParseClock(e.TimeFrom); ok {
			buckets[m/60].Count++
		}
	}
	return buckets
}

func weekly(events []model.Event, ref caldate.Date) []Bucket {
	if !ref.Valid() {
		return nil
	}
	days := caldate.DaysInMonth(ref.Year(), ref.Month())
	n := (days + 6) / 7
	buckets := make([]Bucket, n)
	for i := range buckets {
		buckets[i].Label = fmt.Sprintf("week-%d", i+1)
	}
	for _, e := range events {
		if !e.StartDate.SameMonth(ref) {
			continue
		}
		week := (e.StartDate.Day() + 6) / 7
		buckets[week-1].Count++
	}
	return buckets
}

// ByStatus counts events per status, sorted by label. Events without a
// status count under "unknown".
func ByStatus(events []model.Event) []Bucket {
	return countBy(events, func(e model.Event) string {
		if e.Status == "" {
			return "unknown"
		}
		return string(e.Status)
	})
}

// ByCategory counts events per category display name in lang.
func ByCategory(events []model.Event, lang string) []Bucket {
	return countBy(events, func(e model.Event) string {
		return e.Category.Name(lang)
	})
}

func countBy(events []model.Event, key func(model.Event) string) []Bucket {
	counts := make(map[string]int)
	for _, e := range events {
		counts[key(e)]++
	}
	out := make([]Bucket, 0, len(counts))
	for label, n := range counts {
		out = append(out, Bucket{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
