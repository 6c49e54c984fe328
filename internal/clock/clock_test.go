package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCooldownReportsProgress(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	var reports []time.Duration
	err := Cooldown(context.Background(), fake, 10*time.Minute, 4*time.Minute, func(remaining, total time.Duration) {
		if total != 10*time.Minute {
			t.Fatalf("unexpected total %s", total)
		}
		reports = append(reports, remaining)
	})
	if err != nil {
		t.Fatalf("cooldown: %v", err)
	}
	want := []time.Duration{10 * time.Minute, 6 * time.Minute, 2 * time.Minute, 0}
	if len(reports) != len(want) {
		t.Fatalf("expected %v, got %v", want, reports)
	}
	for i := range want {
		if reports[i] != want[i] {
			t.Fatalf("report %d = %s, want %s", i, reports[i], want[i])
		}
	}
	if fake.Slept() != 10*time.Minute {
		t.Fatalf("expected 10m slept, got %s", fake.Slept())
	}
	if !fake.Now().Equal(start.Add(10 * time.Minute)) {
		t.Fatalf("clock did not advance: %s", fake.Now())
	}
}

func TestCooldownCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Cooldown(ctx, NewFake(time.Now()), time.Hour, time.Minute, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestRealSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := (Real{}).Sleep(ctx, time.Hour); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRemaining(t *testing.T) {
	now := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	if got := Remaining(now, time.Time{}, 48*time.Hour); got != 0 {
		t.Fatalf("zero last should not gate, got %s", got)
	}
	if got := Remaining(now, now.Add(-47*time.Hour), 48*time.Hour); got != time.Hour {
		t.Fatalf("expected 1h remaining, got %s", got)
	}
	if got := Remaining(now, now.Add(-49*time.Hour), 48*time.Hour); got != 0 {
		t.Fatalf("expected expired cooldown, got %s", got)
	}
}
