package bus

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff produces exponentially growing waits with jitter: the nth wait is
// drawn from [d/2, d) where d is base doubled n times and capped at max.
type Backoff struct {
	base time.Duration
	max  time.Duration

	mu      sync.Mutex
	attempt int
	jitter  func() float64
}

// NewBackoff creates a backoff starting at base and capped at max.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max, jitter: rand.Float64}
}

// Next returns the wait before the next attempt.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.base
	for i := 0; i < b.attempt && d < b.max; i++ {
		d *= 2
	}
	if d > b.max {
		d = b.max
	}
	b.attempt++

	half := d / 2
	return half + time.Duration(b.jitter()*float64(d-half))
}

// Reset starts the sequence over after a successful attempt.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}
