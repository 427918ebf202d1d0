package chat

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReadingDelayBounds(t *testing.T) {
	timing := NewTimingWithSource(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		d := timing.ReadingDelay()
		assert.GreaterOrEqual(t, d, 1*time.Second)
		assert.Less(t, d, 2*time.Second)
	}
}

func TestReadReceiptDelayBounds(t *testing.T) {
	timing := NewTimingWithSource(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		d := timing.ReadReceiptDelay()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, 1*time.Second)
	}
}

func TestTypingDelayBounds(t *testing.T) {
	timing := NewTimingWithSource(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		d := timing.TypingDelay(0)
		assert.GreaterOrEqual(t, d, 1*time.Second)
		assert.Less(t, d, 5*time.Second)
	}
}

func TestTypingDelayNeverExceedsCap(t *testing.T) {
	timing := NewTimingWithSource(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		d := timing.TypingDelay(10000)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestTypingDelayGrowsWithLength(t *testing.T) {
	// Same seed means the same base draw for each call sequence, so the
	// length bonus is the only difference.
	short := NewTimingWithSource(rand.NewSource(1)).TypingDelay(0)
	long := NewTimingWithSource(rand.NewSource(1)).TypingDelay(150)

	assert.Greater(t, long, short)
}
