package workflow

import (
	"fmt"
	"time"

	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
)

// cronScanLimit bounds the forward scan when computing the next firing of
// a cron recurrence: just over a year of minutes.
const cronScanLimit = 370 * 24 * 60

// ComputeNextRun is a pure function of (recurrence, now). It returns nil
// when the recurrence has no future occurrence. The returned instant is
// always strictly after now.
func ComputeNextRun(rec models.Recurrence, now time.Time) *time.Time {
	switch rec.Frequency {
	case models.FrequencyOnce:
		if rec.ExecuteAt != nil && rec.ExecuteAt.After(now) {
			t := *rec.ExecuteAt
			return &t
		}
		return nil
	case models.FrequencyDaily:
		hh, mm, err := parseTimeOfDay(rec.TimeOfDay)
		if err != nil {
			return nil
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return &candidate
	case models.FrequencyWeekly:
		hh, mm, err := parseTimeOfDay(rec.TimeOfDay)
		if err != nil {
			return nil
		}
		daysAhead := (rec.DayOfWeek - int(now.Weekday()) + 7) % 7
		candidate := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location()).AddDate(0, 0, daysAhead)
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		return &candidate
	case models.FrequencyMonthly:
		hh, mm, err := parseTimeOfDay(rec.TimeOfDay)
		if err != nil {
			return nil
		}
		candidate := time.Date(now.Year(), now.Month(), rec.DayOfMonth, hh, mm, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = time.Date(now.Year(), now.Month()+1, rec.DayOfMonth, hh, mm, 0, 0, now.Location())
		}
		return &candidate
	case models.FrequencyCron:
		spec, err := ParseCron(rec.CronExpr)
		if err != nil {
			return nil
		}
		candidate := now.Truncate(time.Minute)
		for i := 0; i < cronScanLimit; i++ {
			candidate = candidate.Add(time.Minute)
			if spec.Matches(candidate) {
				return &candidate
			}
		}
		return nil
	default:
		return nil
	}
}

// parseTimeOfDay parses "15:04" into hour and minute.
func parseTimeOfDay(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %v", s, err)
	}
	return t.Hour(), t.Minute(), nil
}
