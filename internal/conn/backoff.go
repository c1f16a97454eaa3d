package conn

import (
	"math/rand"
	"time"
)

// Backoff computes reconnect delays: base doubled per attempt, capped, with
// additive jitter of up to JitterFrac of the delay so simultaneous clients
// don't stampede the backend. The cap bounds the jittered delay too.
type Backoff struct {
	Base       time.Duration
	Cap        time.Duration
	JitterFrac float64
	rng        *rand.Rand
}

// NewBackoff creates a backoff policy with the given base and cap and 50%
// jitter.
func NewBackoff(base, cap time.Duration) *Backoff {
	return &Backoff{
		Base:       base,
		Cap:        cap,
		JitterFrac: 0.5,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the delay before the given zero-based attempt. The pre-jitter
// sequence is non-decreasing up to the cap.
func (b *Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Cap {
			d = b.Cap
			break
		}
	}
	if d > b.Cap {
		d = b.Cap
	}
	if b.JitterFrac > 0 && b.rng != nil {
		d += time.Duration(b.rng.Float64() * b.JitterFrac * float64(d))
		if d > b.Cap {
			d = b.Cap
		}
	}
	return d
}
