package chat

import (
	"math/rand"
	"sync"
	"time"
)

// Timing delay bounds. Chosen to make automated turn-taking feel
// conversational; nothing downstream depends on the exact values.
const (
	minReadingDelay = 1000 * time.Millisecond
	maxReadingDelay = 2000 * time.Millisecond

	minReceiptDelay = 500 * time.Millisecond
	maxReceiptDelay = 1000 * time.Millisecond

	minTypingDelay = 1000 * time.Millisecond
	maxTypingDelay = 5000 * time.Millisecond

	// Per-character typing bonus, capped so long messages don't stall the chat.
	typingBonusPerChar = 5 * time.Millisecond
	maxTypingBonus     = 1000 * time.Millisecond
	typingBonusWeight  = 0.3
)

// Timing produces the artificial reading/typing pauses and read-receipt
// delays that pace automated responses.
type Timing struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewTiming returns a Timing seeded from the clock.
func NewTiming() *Timing {
	return NewTimingWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewTimingWithSource returns a Timing with an injectable random source.
func NewTimingWithSource(src rand.Source) *Timing {
	return &Timing{rng: rand.New(src)}
}

func (t *Timing) between(lo, hi time.Duration) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return lo + time.Duration(t.rng.Int63n(int64(hi-lo)))
}

// ReadingDelay is the pause before the assistant "reads" a user message.
func (t *Timing) ReadingDelay() time.Duration {
	return t.between(minReadingDelay, maxReadingDelay)
}

// ReadReceiptDelay is the pause before the read indicator appears.
func (t *Timing) ReadReceiptDelay() time.Duration {
	return t.between(minReceiptDelay, maxReceiptDelay)
}

// TypingDelay simulates composing a message of the given length. Bounded, and
// grows weakly with length up to the cap.
func (t *Timing) TypingDelay(messageLength int) time.Duration {
	base := t.between(minTypingDelay, maxTypingDelay)
	bonus := time.Duration(messageLength) * typingBonusPerChar
	if bonus > maxTypingBonus {
		bonus = maxTypingBonus
	}
	d := base + time.Duration(float64(bonus)*typingBonusWeight)
	if d > maxTypingDelay {
		d = maxTypingDelay
	}
	return d
}
