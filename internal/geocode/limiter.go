package geocode

import (
	"context"
	"sync"
	"time"
)

// DefaultMinInterval is the minimum spacing between provider requests,
// measured from the end of one request to the start of the next.
const DefaultMinInterval = 1100 * time.Millisecond

// IntervalLimiter serializes outbound provider requests and enforces a
// minimum interval between them. Acquire blocks until the caller may issue a
// request and returns a release func that must be called once the request
// finishes; the interval is measured from release.
type IntervalLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	return &IntervalLimiter{
		interval: interval,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Acquire blocks until at least the configured interval has passed since the
// previous release. Only one caller holds the limiter at a time; the rest
// queue on the internal mutex. On context cancellation the slot is freed and
// ctx.Err() is returned.
func (l *IntervalLimiter) Acquire(ctx context.Context) (release func(), err error) {
	l.mu.Lock()

	if !l.last.IsZero() {
		if wait := l.interval - l.now().Sub(l.last); wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				l.mu.Unlock()
				return nil, err
			}
		}
	}

	var once sync.Once
	release = func() {
		once.Do(func() {
			l.last = l.now()
			l.mu.Unlock()
		})
	}
	return release, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
