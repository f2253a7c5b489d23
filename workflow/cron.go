package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronSpec is a five-field minute-granularity expression
// (minute hour day-of-month month day-of-week) where each field is either
// "*" or an exact value. Evaluation happens on a single shared minute
// ticker owned by the scheduler, not one ticker per schedule.
type CronSpec struct {
	Minute     cronField
	Hour       cronField
	DayOfMonth cronField
	Month      cronField
	DayOfWeek  cronField
}

type cronField struct {
	any   bool
	value int
}

func (f cronField) matches(v int) bool {
	return f.any || f.value == v
}

func ParseCron(expr string) (CronSpec, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 {
		return CronSpec{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	bounds := []struct {
		name     string
		min, max int
	}{
		{"minute", 0, 59},
		{"hour", 0, 23},
		{"day-of-month", 1, 31},
		{"month", 1, 12},
		{"day-of-week", 0, 6},
	}

	parsed := make([]cronField, 5)
	for i, raw := range fields {
		if raw == "*" {
			parsed[i] = cronField{any: true}
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return CronSpec{}, fmt.Errorf("cron %s field %q is not * or a number", bounds[i].name, raw)
		}
		if n < bounds[i].min || n > bounds[i].max {
			return CronSpec{}, fmt.Errorf("cron %s field %d out of range [%d,%d]", bounds[i].name, n, bounds[i].min, bounds[i].max)
		}
		parsed[i] = cronField{value: n}
	}

	return CronSpec{
		Minute:     parsed[0],
		Hour:       parsed[1],
		DayOfMonth: parsed[2],
		Month:      parsed[3],
		DayOfWeek:  parsed[4],
	}, nil
}

// Matches reports whether the spec fires at the minute containing t.
func (s CronSpec) Matches(t time.Time) bool {
	return s.Minute.matches(t.Minute()) &&
		s.Hour.matches(t.Hour()) &&
		s.DayOfMonth.matches(t.Day()) &&
		s.Month.matches(int(t.Month())) &&
		s.DayOfWeek.matches(int(t.Weekday()))
}
