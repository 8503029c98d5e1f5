package cron

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type field struct {
	name     string
	min, max int
	names    map[string]int
}

var fields = [5]field{
	{name: "minute", min: 0, max: 59},
	{name: "hour", min: 0, max: 23},
	{name: "day-of-month", min: 1, max: 31},
	{name: "month", min: 1, max: 12, names: map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}},
	{name: "day-of-week", min: 0, max: 7, names: map[string]int{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}},
}

var macros = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
	"@yearly":   "0 0 1 1 *",
}

// Parse parses a five-field expression (minute hour day-of-month month
// day-of-week) or one of the @hourly, @daily, @weekly, @monthly and @yearly
// macros. Lists, ranges, steps and three-letter month and weekday names are
// accepted. Expressions that can never fire are rejected.
func Parse(expr string) (*Schedule, error) {
	normalized := strings.TrimSpace(expr)
	if m, ok := macros[strings.ToLower(normalized)]; ok {
		normalized = m
	}

	parts := strings.Fields(normalized)
	if len(parts) != len(fields) {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(parts))
	}

	var values [5][]int
	for i, f := range fields {
		v, err := f.parse(parts[i])
		if err != nil {
			return nil, fmt.Errorf("invalid %s field %q: %w", f.name, parts[i], err)
		}
		values[i] = v
	}

	s := &Schedule{
		minutes:     values[0],
		hours:       values[1],
		daysOfMonth: values[2],
		months:      values[3],
		daysOfWeek:  values[4],
		expr:        expr,
	}
	if err := s.checkReachable(); err != nil {
		return nil, err
	}
	return s, nil
}

// parse expands a comma separated list of terms into sorted unique values
func (f field) parse(spec string) ([]int, error) {
	if spec == "" {
		return nil, fmt.Errorf("empty field")
	}

	var out []int
	for _, term := range strings.Split(spec, ",") {
		if term == "" {
			return nil, fmt.Errorf("empty value in list")
		}
		v, err := f.term(term)
		if err != nil {
			return nil, err
		}
		out = append(out, v...)
	}

	// 7 is accepted as Sunday
	if f.name == "day-of-week" {
		for i, v := range out {
			if v == 7 {
				out[i] = 0
			}
		}
	}

	slices.Sort(out)
	return slices.Compact(out), nil
}

// term handles *, N, N-M and either of those followed by /step
func (f field) term(term string) ([]int, error) {
	base, stepSpec, hasStep := strings.Cut(term, "/")

	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepSpec)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("step must be a positive integer, got %q", stepSpec)
		}
		step = n
	}

	start, end := f.min, f.max
	switch {
	case base == "*":
	case strings.Contains(base, "-"):
		lo, hi, _ := strings.Cut(base, "-")
		var err error
		if start, err = f.value(lo); err != nil {
			return nil, err
		}
		if end, err = f.value(hi); err != nil {
			return nil, err
		}
		if start > end {
			return nil, fmt.Errorf("invalid range: start %d > end %d", start, end)
		}
	default:
		v, err := f.value(base)
		if err != nil {
			return nil, err
		}
		start = v
		// N/step runs from N to the end of the field
		if !hasStep {
			end = v
		}
	}

	var out []int
	for v := start; v <= end; v += step {
		out = append(out, v)
	}
	return out, nil
}

func (f field) value(s string) (int, error) {
	if v, ok := f.names[strings.ToLower(s)]; ok {
		return v, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	if v < f.min || v > f.max {
		return 0, fmt.Errorf("value %d out of bounds [%d, %d]", v, f.min, f.max)
	}
	return v, nil
}

// checkReachable rejects day-of-month and month combinations that never occur,
// such as "0 0 30 2 *". A restricted day-of-week always has some match.
func (s *Schedule) checkReachable() error {
	if len(s.daysOfWeek) < 7 && len(s.daysOfMonth) < 31 {
		return nil
	}
	for _, m := range s.months {
		for _, d := range s.daysOfMonth {
			if d <= maxDays(m) {
				return nil
			}
		}
	}
	return fmt.Errorf("impossible date: days %v never occur in months %v", s.daysOfMonth, s.months)
}

// maxDays allows Feb 29; Next skips it in common years
func maxDays(month int) int {
	switch month {
	case 2:
		return 29
	case 4, 6, 9, 11:
		return 30
	}
	return 31
}
