package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Sleeper blocks for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryPolicy bounds the explanation path: at most MaxAttempts attempts with a
// 1s, 2s, 4s backoff schedule between transient failures.
type RetryPolicy struct {
	MaxAttempts int
	Sleep       Sleeper
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Sleep: sleepContext}
}

// newSchedule yields 1s, 2s, 4s with no jitter.
func newSchedule() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         4 * time.Second,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Delays lists the waits the policy would use between attempts.
func (p RetryPolicy) Delays() []time.Duration {
	schedule := newSchedule()
	delays := make([]time.Duration, 0, p.MaxAttempts)
	for i := 0; i < p.MaxAttempts; i++ {
		delays = append(delays, schedule.NextBackOff())
	}
	return delays
}

type callState int

const (
	stateAttempt callState = iota
	stateBackoff
	stateDone
	stateFailed
)

func (s callState) String() string {
	switch s {
	case stateAttempt:
		return "ATTEMPT"
	case stateBackoff:
		return "BACKOFF"
	case stateDone:
		return "DONE"
	case stateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// run drives one call through ATTEMPT -> BACKOFF -> ATTEMPT ... until DONE or
// FAILED. Every BACKOFF counts one retry for provider. It returns the number
// of attempts made and the final error, which is always an *Error on failure.
func (p RetryPolicy) run(ctx context.Context, provider string, rec Recorder, attempt func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	schedule := newSchedule()

	state := stateAttempt
	n := 0
	var lastErr error

	for {
		switch state {
		case stateAttempt:
			if err := ctx.Err(); err != nil {
				lastErr = asError(provider, err)
				state = stateFailed
				continue
			}
			n++
			err := attempt(ctx)
			switch {
			case err == nil:
				state = stateDone
			case ctx.Err() != nil:
				// the caller went away mid-attempt; whatever the backend
				// reported, this is not worth retrying
				lastErr = asError(provider, ctx.Err())
				state = stateFailed
			case isTransient(err) && n < maxAttempts:
				lastErr = err
				state = stateBackoff
			default:
				lastErr = asError(provider, err)
				state = stateFailed
			}

		case stateBackoff:
			delay := schedule.NextBackOff()
			rec.IncrementLLMRetry(provider)
			slog.Warn("LLM call failed, retrying",
				"provider", provider,
				"attempt", n,
				"max_attempts", maxAttempts,
				"delay", delay,
				"error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				lastErr = asError(provider, err)
				state = stateFailed
				continue
			}
			state = stateAttempt

		case stateDone:
			return n, nil

		case stateFailed:
			final := asError(provider, lastErr)
			if n == maxAttempts && isTransient(final) {
				final = newError(provider, ErrTransient, "request failed after %d attempts: %s", n, final.Message)
				slog.Error("LLM call failed after retries", "provider", provider, "attempts", n, "error", final)
			}
			return n, final
		}
	}
}
