package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestShouldScheduleNextTTL(t *testing.T) {
	t0 := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	due, err := ShouldScheduleNext(t0, t0.Add(299*time.Second), "300")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if due {
		t.Fatalf("expected not due one second before ttl")
	}
	due, err = ShouldScheduleNext(t0, t0.Add(301*time.Second), "300")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !due {
		t.Fatalf("expected due one second after ttl")
	}
}

func TestShouldScheduleNextTTLExactBoundaryNotDue(t *testing.T) {
	t0 := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	due, err := ShouldScheduleNext(t0, t0.Add(300*time.Second), "300")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if due {
		t.Fatalf("expected strict greater-than at exact boundary")
	}
}

func TestShouldScheduleNextDaily(t *testing.T) {
	previous := time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)
	due, err := ShouldScheduleNext(previous, time.Date(2024, 3, 11, 8, 29, 0, 0, time.UTC), "08:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if due {
		t.Fatalf("expected not due before next day's occurrence")
	}
	due, err = ShouldScheduleNext(previous, time.Date(2024, 3, 11, 8, 30, 1, 0, time.UTC), "08:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !due {
		t.Fatalf("expected due just after next day's occurrence")
	}
}

func TestShouldScheduleNextLateNightWakeup(t *testing.T) {
	previous := time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)
	due, err := ShouldScheduleNext(previous, time.Date(2024, 3, 11, 0, 1, 0, 0, time.UTC), "23:59")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if due {
		t.Fatalf("scheduler waking after midnight must not re-run the 23:59 query")
	}
	due, err = ShouldScheduleNext(previous, time.Date(2024, 3, 11, 23, 59, 1, 0, time.UTC), "23:59")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !due {
		t.Fatalf("expected due after the following day's 23:59")
	}
}

func TestShouldScheduleNextRunBeforeScheduledTime(t *testing.T) {
	// Previous run happened at 01:00, schedule is 23:00 the same day.
	previous := time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC)
	due, err := ShouldScheduleNext(previous, time.Date(2024, 3, 10, 23, 0, 1, 0, time.UTC), "23:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !due {
		t.Fatalf("expected due after same-day occurrence when previous run was earlier in the day")
	}
}

func TestShouldScheduleNextFarPastIsSimplyDue(t *testing.T) {
	previous := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	due, err := ShouldScheduleNext(previous, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), "3600")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !due {
		t.Fatalf("expected due for a long-overdue query")
	}
}

func TestValidateRejectsMalformedSchedules(t *testing.T) {
	for _, schedule := range []string{"", "24:00", "12:60", "12:00:00", "abc", "-60", "0"} {
		err := Validate(schedule)
		if err == nil {
			t.Fatalf("expected error for schedule %q", schedule)
		}
		if !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("expected ErrInvalidSchedule for %q, got %v", schedule, err)
		}
	}
}

func TestValidateAcceptsWellFormedSchedules(t *testing.T) {
	for _, schedule := range []string{"60", "86400", "00:00", "23:59"} {
		if err := Validate(schedule); err != nil {
			t.Fatalf("unexpected error for schedule %q: %v", schedule, err)
		}
	}
}
