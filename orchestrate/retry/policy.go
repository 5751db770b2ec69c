package retry

import (
	"errors"
	"math"
	"time"
)

// Policy decides whether a failed attempt is retried and how long to wait first.
// Attempts are numbered from 1.
type Policy interface {
	ShouldRetry(attempt int, err error) bool
	Delay(attempt int) time.Duration
}

// Matcher selects the errors a policy retries.
type Matcher func(error) bool

// Is matches errors that wrap target.
func Is(target error) Matcher {
	return func(err error) bool {
		return errors.Is(err, target)
	}
}

// As matches errors with an E somewhere in their chain.
func As[E error]() Matcher {
	return func(err error) bool {
		var target E
		return errors.As(err, &target)
	}
}

func matches(matchers []Matcher, err error) bool {
	if len(matchers) == 0 {
		return true
	}
	for _, match := range matchers {
		if match(err) {
			return true
		}
	}
	return false
}

// ExponentialBackoff waits Base * 2^(attempt-1), capped at Max. Without a Max the
// delay saturates at the largest time.Duration.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration

	// RetryOn restricts retries to matching errors; empty retries every error.
	RetryOn []Matcher
}

func (p ExponentialBackoff) ShouldRetry(attempt int, err error) bool {
	return matches(p.RetryOn, err)
}

func (p ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.Base
	for i := 1; i < attempt; i++ {
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64
			break
		}
		delay *= 2
		if p.Max > 0 && delay >= p.Max {
			return p.Max
		}
	}

	if p.Max > 0 && delay > p.Max {
		return p.Max
	}
	return delay
}

// FixedDelay waits the same duration before every retry.
type FixedDelay struct {
	Wait    time.Duration
	RetryOn []Matcher
}

func (p FixedDelay) ShouldRetry(attempt int, err error) bool {
	return matches(p.RetryOn, err)
}

func (p FixedDelay) Delay(attempt int) time.Duration {
	return p.Wait
}
