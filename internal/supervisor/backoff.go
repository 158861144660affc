package supervisor

import (
	"math"
	"sync"
	"time"
)

const defaultFactor = 2

// exponentialDelay hands out base, base*factor, base*factor^2, ... capped at
// max. Reset starts the sequence over.
type exponentialDelay struct {
	mu       sync.Mutex
	base     time.Duration
	max      time.Duration
	factor   float64
	attempts uint32
}

func newExponentialDelay(base, max time.Duration, factor float64) *exponentialDelay {
	if base < 0 {
		base = 0
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	if factor < 1 {
		factor = defaultFactor
	}
	return &exponentialDelay{base: base, max: max, factor: factor}
}

func (d *exponentialDelay) Next() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	attempt := d.attempts
	d.attempts++

	delay := d.base
	if attempt > 0 && delay > 0 {
		f := float64(delay) * math.Pow(d.factor, float64(attempt))
		if f > float64(d.max) {
			f = float64(d.max)
		}
		delay = time.Duration(f)
	}
	if delay > d.max {
		delay = d.max
	}
	return delay
}

func (d *exponentialDelay) Reset() {
	d.mu.Lock()
	d.attempts = 0
	d.mu.Unlock()
}
