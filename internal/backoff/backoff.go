// Package backoff computes reconnect delays with bounded exponential
// growth and optional jitter.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Config defines the backoff schedule.
type Config struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
	Jitter     bool
}

// Default returns the schedule used for unattended devices: start at one
// second and never back off longer than thirty.
func Default() Config {
	return Config{
		Initial:    time.Second,
		Multiplier: 2.0,
		Max:        30 * time.Second,
		Jitter:     true,
	}
}

// Delay returns the wait before reconnect attempt n (1-based). With jitter
// enabled the result is scaled by a factor in [0.5, 1.5).
func (c Config) Delay(attempt int, rng *rand.Rand) time.Duration {
	if c.Initial <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	mult := c.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}

	d := float64(c.Initial) * math.Pow(mult, float64(attempt-1))
	if c.Max > 0 && d > float64(c.Max) {
		d = float64(c.Max)
	}
	if c.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		d *= f
	}
	return time.Duration(d)
}
