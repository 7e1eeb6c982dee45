package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_GrowsAndClamps(t *testing.T) {
	b := NewBackoff(1*time.Second, 8*time.Second, 2.0)

	var last time.Duration
	for i := 0; i < 10; i++ {
		last = b.Next()
	}

	// After enough attempts the wait must sit at the cap, give or take
	// the jitter spread.
	assert.GreaterOrEqual(t, last, 6*time.Second)
	assert.LessOrEqual(t, last, 10*time.Second)
	assert.Equal(t, 10, b.Attempts())
}

func TestBackoff_NeverBelowMinimum(t *testing.T) {
	b := NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for i := 0; i < 50; i++ {
		assert.GreaterOrEqual(t, b.Next(), 1*time.Second)
	}
}

func TestBackoff_Reset(t *testing.T) {
	b := NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for i := 0; i < 5; i++ {
		b.Next()
	}
	b.Reset()

	assert.Equal(t, 0, b.Attempts())
	assert.LessOrEqual(t, b.Next(), 1200*time.Millisecond)
}
