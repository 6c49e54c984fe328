// Package retry provides the bounded retry combinator shared by approvals
// and transaction submission.
package retry

import (
	"context"
	"strconv"
	"time"

	"AutoLP-Chain/internal/clock"
	apperrors "AutoLP-Chain/internal/errors"
)

// Policy bounds a retry loop.
type Policy struct {
	Attempts  int
	Delay     time.Duration
	Retryable func(error) bool
}

// Attempt is passed to the retried function; Number starts at 1.
type Attempt struct {
	Number int
	Of     int
}

// Last reports whether this is the final attempt.
func (a Attempt) Last() bool {
	return a.Number >= a.Of
}

// OnFailure is invoked after every failed attempt.
type OnFailure func(attempt Attempt, err error)

// Do runs fn until it succeeds, the policy's attempt budget is spent, or the
// error is not retryable. The last error is wrapped with RETRIES_EXHAUSTED
// when the budget runs out; non-retryable errors are returned unchanged.
func Do(ctx context.Context, clk clock.Clock, policy Policy, fn func(ctx context.Context, attempt Attempt) error, hooks ...OnFailure) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = apperrors.RetryableError
	}

	var lastErr error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt := Attempt{Number: n, Of: attempts}
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		for _, hook := range hooks {
			hook(attempt, err)
		}
		if !retryable(err) {
			return err
		}
		if attempt.Last() {
			break
		}
		if err := clk.Sleep(ctx, policy.Delay); err != nil {
			return err
		}
	}
	return apperrors.Wrap(apperrors.CodeRetriesExhausted, lastErr, "",
		apperrors.WithMetadata("attempts", strconv.Itoa(attempts)))
}
