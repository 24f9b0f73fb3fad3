package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Max: 60 * time.Second, Multiplier: 2.0}

	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 8*time.Second, b.Delay(3))
	assert.Equal(t, 16*time.Second, b.Delay(4))
	assert.Equal(t, 32*time.Second, b.Delay(5))
	assert.Equal(t, 60*time.Second, b.Delay(6))
	assert.Equal(t, 60*time.Second, b.Delay(20))
}

func TestBackoffDelayClampsAttempt(t *testing.T) {
	b := Backoff{Base: time.Second, Max: time.Minute, Multiplier: 2.0}
	assert.Equal(t, b.Delay(1), b.Delay(0))
	assert.Equal(t, b.Delay(1), b.Delay(-3))
}

func TestBackoffJitterStaysWithinBounds(t *testing.T) {
	b := Backoff{Base: time.Second, Max: time.Minute, Multiplier: 2.0, Jitter: 0.5}
	for attempt := 1; attempt <= 10; attempt++ {
		base := Backoff{Base: b.Base, Max: b.Max, Multiplier: b.Multiplier}.Delay(attempt)
		for i := 0; i < 50; i++ {
			d := b.Delay(attempt)
			assert.GreaterOrEqual(t, d, base)
			assert.LessOrEqual(t, d, time.Duration(float64(base)*1.5)+time.Nanosecond)
			assert.LessOrEqual(t, d, b.Max)
		}
	}
}

func TestDefaultBackoffNeverExceedsMax(t *testing.T) {
	b := DefaultBackoff()
	for attempt := 1; attempt < 100; attempt++ {
		assert.LessOrEqual(t, b.Delay(attempt), b.Max)
	}
}
