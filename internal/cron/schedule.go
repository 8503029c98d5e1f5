// Package cron parses five-field cron expressions and fires scheduled
// full-catalog syncs.
package cron

import (
	"slices"
	"time"
)

// searchLimit bounds Next for schedules that fire rarely, such as Feb 29
const searchLimit = 8 * 366 * 24 * time.Hour

// Schedule is a parsed cron expression
type Schedule struct {
	minutes     []int
	hours       []int
	daysOfMonth []int
	months      []int
	daysOfWeek  []int

	expr string
}

// String returns the expression the schedule was parsed from
func (s *Schedule) String() string {
	return s.expr
}

// Next returns the first matching minute strictly after t, or the zero time
// if none exists within the search limit.
func (s *Schedule) Next(t time.Time) time.Time {
	current := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(searchLimit)

	for current.Before(limit) {
		if !slices.Contains(s.months, int(current.Month())) {
			// jump to the first minute of the next month
			current = time.Date(current.Year(), current.Month()+1, 1, 0, 0, 0, 0, current.Location())
			continue
		}
		if !s.matchesDay(current) {
			current = time.Date(current.Year(), current.Month(), current.Day()+1, 0, 0, 0, 0, current.Location())
			continue
		}
		if !slices.Contains(s.hours, current.Hour()) {
			current = time.Date(current.Year(), current.Month(), current.Day(), current.Hour()+1, 0, 0, 0, current.Location())
			continue
		}
		if slices.Contains(s.minutes, current.Minute()) {
			return current
		}
		current = current.Add(time.Minute)
	}
	return time.Time{}
}

// Matches reports whether t falls on a scheduled minute
func (s *Schedule) Matches(t time.Time) bool {
	return slices.Contains(s.minutes, t.Minute()) &&
		slices.Contains(s.hours, t.Hour()) &&
		slices.Contains(s.months, int(t.Month())) &&
		s.matchesDay(t)
}

// matchesDay applies the cron rule: when both day fields are restricted a day
// matching either one is scheduled.
func (s *Schedule) matchesDay(t time.Time) bool {
	domRestricted := len(s.daysOfMonth) < 31
	dowRestricted := len(s.daysOfWeek) < 7

	dom := slices.Contains(s.daysOfMonth, t.Day())
	dow := slices.Contains(s.daysOfWeek, int(t.Weekday()))

	switch {
	case domRestricted && dowRestricted:
		return dom || dow
	case domRestricted:
		return dom
	case dowRestricted:
		return dow
	}
	return true
}
