package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics keeps per-route request and error counters in memory. A nil
// receiver is a no-op so callers never have to guard.
type Metrics struct {
	mu       sync.Mutex
	requests map[string]int64
	errors   map[string]int64
}

// NewMetrics returns an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: make(map[string]int64),
		errors:   make(map[string]int64),
	}
}

// RecordRequest counts one completed request under path|method|status.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[counterKey(path, method, strconv.Itoa(status))]++
}

// RecordError counts one failed request under path|method|errorCode.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[counterKey(path, method, code)]++
}

func counterKey(path, method, outcome string) string {
	return path + "|" + method + "|" + outcome
}
