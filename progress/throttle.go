package progress

import "time"

// DefaultThrottleInterval is the minimum spacing between forwarded events.
const DefaultThrottleInterval = 100 * time.Millisecond

// Throttled limits how often events reach the wrapped observer: the first
// event and any event at fraction >= 1 always pass, other events pass at most
// once per interval.
type Throttled struct {
	observer Observer
	interval time.Duration
	now      func() time.Time

	delivered bool
	last      time.Time
}

// NewThrottled decorates observer with throttling. A non-positive interval
// falls back to DefaultThrottleInterval.
func NewThrottled(observer Observer, interval time.Duration) *Throttled {
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	return &Throttled{observer: observer, interval: interval, now: time.Now}
}

// OnProgress implements Observer.
func (t *Throttled) OnProgress(e Event) {
	now := t.now()
	final := e.Known && e.Fraction >= 1
	if t.delivered && !final && now.Sub(t.last) < t.interval {
		return
	}
	t.delivered = true
	t.last = now
	t.observer.OnProgress(e)
}
