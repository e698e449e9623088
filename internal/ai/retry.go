package ai

import (
	"context"
	"time"
)

// RetryPolicy bounds the retry loop around a generate call. Only the
// overloaded condition (503) is retried; attempts are strictly sequential
// and the wait is exponential: BaseDelay * 2^attempt.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond}
}

// BackoffDelay returns the wait before re-attempting after attempt n.
func (p RetryPolicy) BackoffDelay(attempt int) time.Duration {
	return p.BaseDelay * (1 << attempt)
}

// generateState enumerates the retry loop states so the transition logic
// is testable without a network call.
type generateState int

const (
	stateAttempting generateState = iota
	stateSucceeded
	stateFailed
)

// next decides the transition after attempt n finished with err.
// It returns the new state and, for a re-attempt, how long to wait first.
func (p RetryPolicy) next(attempt int, err error) (generateState, time.Duration) {
	if err == nil {
		return stateSucceeded, 0
	}
	if IsOverloaded(err) && attempt < p.MaxRetries {
		return stateAttempting, p.BackoffDelay(attempt)
	}
	return stateFailed, 0
}

// sleepFunc waits for d or until ctx is done. Injected so tests can record
// the schedule instead of sleeping.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GenerateWithRetry runs GenerateContent under the policy, returning the
// last observed error once retries are exhausted or a non-retryable
// failure occurs.
func (c *GeminiClient) GenerateWithRetry(ctx context.Context, contents []Content, policy RetryPolicy) (*GenerateResponse, error) {
	return generateWithRetry(ctx, policy, sleepWithContext, func(ctx context.Context) (*GenerateResponse, error) {
		return c.GenerateContent(ctx, contents)
	})
}

func generateWithRetry(
	ctx context.Context,
	policy RetryPolicy,
	sleep sleepFunc,
	call func(context.Context) (*GenerateResponse, error),
) (*GenerateResponse, error) {
	state := stateAttempting
	for attempt := 0; state == stateAttempting; attempt++ {
		resp, err := call(ctx)

		var delay time.Duration
		state, delay = policy.next(attempt, err)
		switch state {
		case stateSucceeded:
			return resp, nil
		case stateFailed:
			return nil, err
		case stateAttempting:
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}
	return nil, ctx.Err()
}
