package workflow

import (
	"testing"
	"time"

	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
)

// NOTE: These tests are intentionally DB-free. nextRetryState is the pure
// state-transition function; the SKIP LOCKED claim path needs MySQL and is
// covered by integration environments.

func TestNextRetryState_BackoffGrowsExponentially(t *testing.T) {
	base := 60 * time.Second
	now := time.Date(2026, time.August, 23, 10, 0, 0, 0, time.UTC)

	status, count, next := nextRetryState(0, 5, base, 2, 0, now)
	if status != models.RetryStatusPending || count != 1 {
		t.Fatalf("unexpected transition: %s count=%d", status, count)
	}
	if next == nil || !next.Equal(now.Add(2*time.Minute)) {
		t.Fatalf("expected next attempt at +2m, got %v", next)
	}

	status, count, next = nextRetryState(1, 5, base, 2, 0, now)
	if status != models.RetryStatusPending || count != 2 {
		t.Fatalf("unexpected transition: %s count=%d", status, count)
	}
	if next == nil || !next.Equal(now.Add(4*time.Minute)) {
		t.Fatalf("expected next attempt at +4m, got %v", next)
	}
}

func TestNextRetryState_CapsAtMaxBackoff(t *testing.T) {
	base := 60 * time.Second
	now := time.Now().UTC()

	_, _, next := nextRetryState(5, 10, base, 2, 5*time.Minute, now)
	if next == nil || !next.Equal(now.Add(5*time.Minute)) {
		t.Fatalf("expected cap at +5m, got %v", next)
	}
}

func TestNextRetryState_RetryCountNeverExceedsMaxRetries(t *testing.T) {
	base := time.Second
	now := time.Now().UTC()
	maxRetries := 2

	// Walk the full lifecycle: three consecutive failures against a budget
	// of two must end terminally FAILED with retry_count == maxRetries.
	count := 0
	status := models.RetryStatusPending
	var next *time.Time
	for attempt := 0; attempt < 3; attempt++ {
		if status == models.RetryStatusFailed {
			break
		}
		status, count, next = nextRetryState(count, maxRetries, base, 2, 0, now)
	}

	if status != models.RetryStatusFailed {
		t.Fatalf("expected terminal FAILED, got %s", status)
	}
	if count != maxRetries {
		t.Fatalf("retry count must equal maxRetries (%d), got %d", maxRetries, count)
	}
	if next != nil {
		t.Fatalf("terminal items must not be rescheduled, got %v", next)
	}
}

func TestNextRetryState_SingleRetryBudget(t *testing.T) {
	status, count, next := nextRetryState(0, 1, time.Second, 2, 0, time.Now().UTC())
	if status != models.RetryStatusFailed || count != 1 || next != nil {
		t.Fatalf("maxRetries=1 must fail on first transition, got %s count=%d next=%v", status, count, next)
	}
}
