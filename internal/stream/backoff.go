package stream

import (
	"math"
	"time"
)

// Backoff is the reconnection delay policy: exponential growth from Base,
// capped at Cap, giving up after MaxAttempts consecutive failures.
type Backoff struct {
	Base        time.Duration
	Factor      float64
	Cap         time.Duration
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:        1000 * time.Millisecond,
		Factor:      2,
		Cap:         30000 * time.Millisecond,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before reconnect attempt number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(float64(b.Base) * math.Pow(b.Factor, float64(attempt)))
	if d > b.Cap || d <= 0 {
		return b.Cap
	}
	return d
}

// Exhausted reports whether attempt (the number of failures so far) has used
// up the retry budget.
func (b Backoff) Exhausted(attempts int) bool {
	return attempts >= b.MaxAttempts
}
