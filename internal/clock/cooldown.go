package clock

import (
	"context"
	"time"
)

// Progress is reported while a cooldown is running.
type Progress func(remaining, total time.Duration)

// Cooldown blocks for total against a monotonic deadline, waking every tick
// to report the remaining time. It returns early with ctx.Err() when ctx is
// cancelled.
func Cooldown(ctx context.Context, clk Clock, total, tick time.Duration, report Progress) error {
	if total <= 0 {
		return nil
	}
	if tick <= 0 || tick > total {
		tick = total
	}
	deadline := clk.Now().Add(total)
	for {
		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			if report != nil {
				report(0, total)
			}
			return nil
		}
		if report != nil {
			report(remaining, total)
		}
		step := tick
		if remaining < step {
			step = remaining
		}
		if err := clk.Sleep(ctx, step); err != nil {
			return err
		}
	}
}

// Remaining returns how long is left of a cooldown of duration that began at
// last. A zero last time means no cooldown is active.
func Remaining(now, last time.Time, duration time.Duration) time.Duration {
	if last.IsZero() {
		return 0
	}
	left := last.Add(duration).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
