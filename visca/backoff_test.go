package visca

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoff_Delay(t *testing.T) {
	require := require.New(t)

	b := Backoff{Initial: 50 * time.Millisecond, Max: time.Second, Multiplier: 2.0}

	require.Equal(50*time.Millisecond, b.Delay(1))
	require.Equal(100*time.Millisecond, b.Delay(2))
	require.Equal(200*time.Millisecond, b.Delay(3))
	require.Equal(400*time.Millisecond, b.Delay(4))
	require.Equal(800*time.Millisecond, b.Delay(5))

	// capped from here on
	require.Equal(time.Second, b.Delay(6))
	require.Equal(time.Second, b.Delay(10))
}

func TestBackoff_DelayMonotonic(t *testing.T) {
	require := require.New(t)

	b := Backoff{Initial: 10 * time.Millisecond, Max: 500 * time.Millisecond, Multiplier: 1.7}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := b.Delay(attempt)
		require.GreaterOrEqual(d, prev)
		require.LessOrEqual(d, 500*time.Millisecond)
		prev = d
	}
	require.Equal(500*time.Millisecond, b.Delay(20))
}

func TestBackoff_DelayEdgeCases(t *testing.T) {
	require := require.New(t)

	// multiplier below 1.0 behaves as a constant schedule
	flat := Backoff{Initial: 20 * time.Millisecond, Max: time.Second, Multiplier: 0.5}
	require.Equal(20*time.Millisecond, flat.Delay(1))
	require.Equal(20*time.Millisecond, flat.Delay(5))

	// zero initial disables the delay entirely
	var zero Backoff
	require.Equal(time.Duration(0), zero.Delay(1))
	require.Equal(time.Duration(0), zero.Delay(3))

	// attempt numbers below 1 are clamped to the initial delay
	b := Backoff{Initial: 30 * time.Millisecond, Max: time.Second, Multiplier: 2.0}
	require.Equal(30*time.Millisecond, b.Delay(0))
	require.Equal(30*time.Millisecond, b.Delay(-1))
}
