// Package streak computes practice streaks and month calendars from the
// days a user completed their tracker.
package streak

import (
	"sort"
	"time"
)

// Day is one cell of a month calendar
type Day struct {
	Date      time.Time
	InMonth   bool
	Completed bool
	Today     bool
}

// Summary is the streak overview shown to a user
type Summary struct {
	Current        int
	Longest        int
	TotalDays      int
	CompletedToday bool
}

// dayKey truncates t to a calendar day in its own location
func dayKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// uniqueDays returns the distinct calendar days in ascending order
func uniqueDays(days []time.Time) []time.Time {
	seen := make(map[time.Time]bool, len(days))
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		k := dayKey(d)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Current returns the number of consecutive completed days ending today.
// If today is not completed yet the streak may still end yesterday.
func Current(days []time.Time, today time.Time) int {
	set := make(map[time.Time]bool, len(days))
	for _, d := range uniqueDays(days) {
		set[d] = true
	}

	cursor := dayKey(today)
	if !set[cursor] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	count := 0
	for set[cursor] {
		count++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return count
}

// Longest returns the longest run of consecutive completed days
func Longest(days []time.Time) int {
	sorted := uniqueDays(days)
	longest, run := 0, 0
	for i, d := range sorted {
		if i > 0 && sorted[i-1].AddDate(0, 0, 1).Equal(d) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

// Summarize builds the streak overview for today
func Summarize(days []time.Time, today time.Time) Summary {
	unique := uniqueDays(days)
	todayKey := dayKey(today)
	completedToday := false
	for _, d := range unique {
		if d.Equal(todayKey) {
			completedToday = true
			break
		}
	}
	return Summary{
		Current:        Current(unique, today),
		Longest:        Longest(unique),
		TotalDays:      len(unique),
		CompletedToday: completedToday,
	}
}

// Month returns the calendar grid of a month as weeks of seven days,
// Monday first. Leading and trailing days belong to neighbouring months.
func Month(days []time.Time, year int, month time.Month, today time.Time) [][]Day {
	set := make(map[time.Time]bool, len(days))
	for _, d := range uniqueDays(days) {
		set[d] = true
	}
	todayKey := dayKey(today)

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	// Monday = 0
	offset := (int(first.Weekday()) + 6) % 7
	cursor := first.AddDate(0, 0, -offset)

	var weeks [][]Day
	for {
		week := make([]Day, 7)
		for i := range week {
			week[i] = Day{
				Date:      cursor,
				InMonth:   cursor.Month() == month,
				Completed: set[cursor],
				Today:     cursor.Equal(todayKey),
			}
			cursor = cursor.AddDate(0, 0, 1)
		}
		weeks = append(weeks, week)
		if cursor.Month() != month {
			break
		}
	}
	return weeks
}
