package infra

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff produces growing waits between attempts. With zero jitter the sequence is
// deterministic: minDelay * multiplier^(attempt-1), capped at maxDelay
type Backoff struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     float64
	current    time.Duration
	attempts   int
	mu         sync.Mutex
}

func NewBackoff(min, max time.Duration, mult float64) *Backoff {
	return &Backoff{
		minDelay:   min,
		maxDelay:   max,
		multiplier: mult,
		jitter:     0.2,
		current:    min,
	}
}

// WithoutJitter disables randomization
func (b *Backoff) WithoutJitter() *Backoff {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jitter = 0
	return b
}

// Delay is the wait before retrying after the given (1-based) attempt. It does not
// touch the stateful sequence used by Next
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(b.minDelay) * math.Pow(b.multiplier, float64(attempt-1)))
	if d > b.maxDelay || d <= 0 {
		d = b.maxDelay
	}
	return d
}

func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++

	wait := b.current
	if b.jitter > 0 {
		jitterFactor := rand.Float64()*2*b.jitter - b.jitter
		wait = max(b.current+time.Duration(jitterFactor*float64(b.current)), b.minDelay)
	}

	b.current = min(time.Duration(float64(b.current)*b.multiplier), b.maxDelay)

	return wait
}

// Attempts counts the delays handed out by Next
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
