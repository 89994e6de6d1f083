package syncer

import (
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// backoff wraps go-retry's exponential backoff with a reset: after any fully
// successful cycle the delay returns to baseline.
type backoff struct {
	current retry.Backoff
	factory func() retry.Backoff
	mu      sync.Mutex
}

func newBackoff(base, capped, jitter time.Duration) *backoff {
	factory := func() retry.Backoff {
		b := retry.NewExponential(base)
		b = retry.WithCappedDuration(capped, b)
		b = retry.WithJitter(jitter, b)
		return b
	}
	return &backoff{factory: factory}
}

// Next returns the delay before the next attempt, growing exponentially up
// to the cap, with jitter.
func (b *backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		b.current = b.factory()
	}

	delay, _ := b.current.Next()
	return delay
}

// Reset returns the backoff to its baseline.
func (b *backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = nil
}
