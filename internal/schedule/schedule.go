package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSchedule marks a schedule string that is neither an all-digit TTL
// in seconds nor a valid "HH:MM" time of day.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Validate checks a schedule string without evaluating it. An empty schedule
// is rejected here; unscheduled queries carry no schedule at all.
func Validate(schedule string) error {
	_, _, _, err := parse(schedule)
	return err
}

// ShouldScheduleNext reports whether a query whose last run completed at
// previousRunAt is due again at now. Both timestamps must be UTC.
//
// A TTL schedule is due strictly after previousRunAt + ttl. A daily "HH:MM"
// schedule is due strictly after the next calendar occurrence of that time of
// day following previousRunAt. The function only answers "due now"; it never
// accumulates missed runs.
func ShouldScheduleNext(previousRunAt, now time.Time, schedule string) (bool, error) {
	ttl, hour, minute, err := parse(schedule)
	if err != nil {
		return false, err
	}
	if ttl > 0 {
		return now.After(previousRunAt.Add(time.Duration(ttl) * time.Second)), nil
	}

	// A query scheduled for 23:59 whose scheduler wakes at 00:01 the next day
	// must not skip the execution: when the previous run happened earlier in
	// the day than the scheduled time, step the reference date back one day
	// before advancing.
	normalized := time.Date(previousRunAt.Year(), previousRunAt.Month(), previousRunAt.Day(), hour, minute, 0, 0, previousRunAt.Location())
	if normalized.After(previousRunAt) {
		previousRunAt = normalized.AddDate(0, 0, -1)
	}
	next := previousRunAt.AddDate(0, 0, 1)
	next = time.Date(next.Year(), next.Month(), next.Day(), hour, minute, 0, 0, next.Location())
	return now.After(next), nil
}

func parse(schedule string) (ttl, hour, minute int, err error) {
	if schedule == "" {
		return 0, 0, 0, fmt.Errorf("%w: empty", ErrInvalidSchedule)
	}
	if isDigits(schedule) {
		ttl, err = strconv.Atoi(schedule)
		if err != nil || ttl <= 0 {
			return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidSchedule, schedule)
		}
		return ttl, 0, 0, nil
	}
	parts := strings.Split(schedule, ":")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidSchedule, schedule)
	}
	hour, hourErr := strconv.Atoi(parts[0])
	minute, minuteErr := strconv.Atoi(parts[1])
	if hourErr != nil || minuteErr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidSchedule, schedule)
	}
	return 0, hour, minute, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
