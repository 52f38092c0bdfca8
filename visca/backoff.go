package visca

import (
	"math"
	"time"
)

// Backoff describes the retry delay schedule applied to timeouts and
// buffer-full rejections.
type Backoff struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the delay; once reached, further retries wait Max.
	Max time.Duration
	// Multiplier scales the delay on each subsequent retry. Values below
	// 1.0 are treated as 1.0.
	Multiplier float64
}

// Delay returns the wait before retry attempt n (1-based). The schedule is
// monotonically non-decreasing: each delay is larger than the previous one
// until the cap is reached.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 {
		return 0
	}
	if attempt <= 1 {
		return b.Initial
	}

	mult := b.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}

	delay := float64(b.Initial) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	return time.Duration(delay)
}
