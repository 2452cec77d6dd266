package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu                sync.Mutex
	requestCount      map[string]int64
	requestDuration   map[string]time.Duration
	errorCount        map[string]int64
	rateLimitedCount  map[string]int64
	notificationCount map[string]int64
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Requests      map[string]int64 `json:"requests"`
	AvgLatencyMs  map[string]int64 `json:"avgLatencyMs"`
	Errors        map[string]int64 `json:"errors"`
	RateLimited   map[string]int64 `json:"rateLimited"`
	Notifications map[string]int64 `json:"notifications"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:      make(map[string]int64),
		requestDuration:   make(map[string]time.Duration),
		errorCount:        make(map[string]int64),
		rateLimitedCount:  make(map[string]int64),
		notificationCount: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestDuration[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordRateLimited counts a denied admission for an operation.
func (m *Metrics) RecordRateLimited(operation string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimitedCount[operation]++
}

// RecordNotification counts a notification outcome: sent, skipped or failed.
func (m *Metrics) RecordNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notificationCount[kind+"|"+outcome]++
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	latency := make(map[string]int64, len(m.requestDuration))
	for key, total := range m.requestDuration {
		if n := m.requestCount[key]; n > 0 {
			latency[key] = (total / time.Duration(n)).Milliseconds()
		}
	}
	return Snapshot{
		Requests:      copyCounts(m.requestCount),
		AvgLatencyMs:  latency,
		Errors:        copyCounts(m.errorCount),
		RateLimited:   copyCounts(m.rateLimitedCount),
		Notifications: copyCounts(m.notificationCount),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
