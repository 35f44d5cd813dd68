package transport

import (
	"sync"
	"time"

	"github.com/docker/go-units"
)

// Requests slower than this are kept in the slow-request ring.
const slowRequestThreshold = 5 * time.Second

const slowRequestRingSize = 10

// SlowRequest records one request that exceeded the slow threshold.
type SlowRequest struct {
	Method   string
	URL      string
	Duration time.Duration
}

// Metrics tracks per-request counters. Observability only; it is never
// consulted on the request path.
type Metrics struct {
	mu           sync.Mutex
	requests     int64
	errors       int64
	totalTime    time.Duration
	slowRequests []SlowRequest
}

// NewMetrics returns an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Record registers one finished request.
func (m *Metrics) Record(method, url string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	m.totalTime += duration
	if err != nil {
		m.errors++
	}
	if duration > slowRequestThreshold {
		m.slowRequests = append(m.slowRequests, SlowRequest{Method: method, URL: url, Duration: duration})
		if len(m.slowRequests) > slowRequestRingSize {
			m.slowRequests = m.slowRequests[1:]
		}
	}
}

// RequestCount returns the number of recorded requests.
func (m *Metrics) RequestCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// ErrorCount returns the number of failed requests.
func (m *Metrics) ErrorCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors
}

// TotalTime returns the cumulative request duration.
func (m *Metrics) TotalTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalTime
}

// Average returns the mean request duration.
func (m *Metrics) Average() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requests == 0 {
		return 0
	}
	return m.totalTime / time.Duration(m.requests)
}

// SlowRequests returns the most recent requests over the slow threshold,
// oldest first.
func (m *Metrics) SlowRequests() []SlowRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SlowRequest, len(m.slowRequests))
	copy(out, m.slowRequests)
	return out
}

// FormatSize renders a byte count for debug logs, e.g. "12.5MB".
func FormatSize(bytes int64) string {
	return units.HumanSize(float64(bytes))
}
