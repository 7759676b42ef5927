package polling

import (
	"context"
	"fmt"
	"math"
	"time"

	"certagent/internal/clock"
	"certagent/internal/domain"
)

// Attempt describes the poll attempt that just finished.
type Attempt struct {
	Scope     domain.Principal
	RequestID domain.RequestID
	// Index is 1 for the first read.
	Index  int
	Status domain.CallStatus
}

// Strategy decides how long to wait before the next read. A non-nil error
// aborts polling.
type Strategy interface {
	Decide(ctx context.Context, a Attempt) (time.Duration, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, a Attempt) (time.Duration, error)

// Decide calls f.
func (f StrategyFunc) Decide(ctx context.Context, a Attempt) (time.Duration, error) { return f(ctx, a) }

// Predicate gates a ConditionalDelay.
type Predicate func(a Attempt) bool

// Once is true on its first evaluation only.
func Once() Predicate {
	fired := false
	return func(Attempt) bool {
		if fired {
			return false
		}
		fired = true
		return true
	}
}

// ConditionalDelay waits d whenever cond holds.
func ConditionalDelay(cond Predicate, d time.Duration) Strategy {
	return StrategyFunc(func(_ context.Context, a Attempt) (time.Duration, error) {
		if cond(a) {
			return d, nil
		}
		return 0, nil
	})
}

// MaxAttempts aborts once n decisions have been made.
func MaxAttempts(n int) Strategy {
	left := n
	return StrategyFunc(func(_ context.Context, a Attempt) (time.Duration, error) {
		left--
		if left <= 0 {
			return 0, fmt.Errorf("no terminal status for request %s after %d attempts", a.RequestID, n)
		}
		return 0, nil
	})
}

// Throttle waits a fixed d on every decision.
func Throttle(d time.Duration) Strategy {
	return StrategyFunc(func(context.Context, Attempt) (time.Duration, error) { return d, nil })
}

// Backoff waits start, then multiplies the wait by factor after each
// decision, never exceeding ceiling when ceiling is positive.
func Backoff(start time.Duration, factor float64, ceiling time.Duration) Strategy {
	current := float64(start)
	return StrategyFunc(func(context.Context, Attempt) (time.Duration, error) {
		wait := time.Duration(current)
		if ceiling > 0 && wait > ceiling {
			wait = ceiling
		}
		current = math.Min(current*factor, float64(math.MaxInt64/2))
		return wait, nil
	})
}

// Timeout aborts when more than d has passed since its first decision.
func Timeout(d time.Duration, c clock.Clock) Strategy {
	c = clock.OrReal(c)
	var deadline time.Time
	return StrategyFunc(func(_ context.Context, a Attempt) (time.Duration, error) {
		now := c.Now()
		if deadline.IsZero() {
			deadline = now.Add(d)
		}
		if now.After(deadline) {
			return 0, fmt.Errorf("request %s timed out after %s", a.RequestID, d)
		}
		return 0, nil
	})
}

// Chain runs each strategy in order and waits for the sum of their
// durations. The first error aborts.
func Chain(strategies ...Strategy) Strategy {
	return StrategyFunc(func(ctx context.Context, a Attempt) (time.Duration, error) {
		var total time.Duration
		for _, s := range strategies {
			d, err := s.Decide(ctx, a)
			if err != nil {
				return 0, err
			}
			total += d
		}
		return total, nil
	})
}

// DefaultStrategy returns the interactive policy: one extra second on the
// first wait, backoff from 1s by 1.2x up to maxWait, and abort after
// timeout. Non-positive arguments select 10s and 5m.
func DefaultStrategy(maxWait, timeout time.Duration, c clock.Clock) Strategy {
	if maxWait <= 0 {
		maxWait = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return Chain(
		ConditionalDelay(Once(), time.Second),
		Backoff(time.Second, 1.2, maxWait),
		Timeout(timeout, c),
	)
}

// BatchStrategy returns the batch policy: backoff from 2s by 1.5x up to
// maxWait and abort after timeout. Non-positive arguments select 60s and 30m.
func BatchStrategy(maxWait, timeout time.Duration, c clock.Clock) Strategy {
	if maxWait <= 0 {
		maxWait = time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return Chain(
		Backoff(2*time.Second, 1.5, maxWait),
		Timeout(timeout, c),
	)
}

// TransportPolicy is implemented by strategies that opt into retrying
// transport failures.
type TransportPolicy interface {
	RetryTransport(err error, failures int) bool
}

type transportRetry struct {
	Strategy
	limit int
}

func (t transportRetry) RetryTransport(_ error, failures int) bool { return failures <= t.limit }

// RetryTransport wraps s so that up to limit transport failures are retried
// after s's wait instead of ending the poll.
func RetryTransport(s Strategy, limit int) Strategy {
	return transportRetry{Strategy: s, limit: limit}
}
