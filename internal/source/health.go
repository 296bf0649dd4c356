package source

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// unhealthyAfter is the number of consecutive failures after which a
// source is reported unhealthy.
const unhealthyAfter = 3

// latencyWindow bounds the rolling response-time window.
const latencyWindow = 10

// HealthStatus is a point-in-time snapshot of one adapter's health.
// It is process-local operational state, reset on restart, and is
// never persisted.
type HealthStatus struct {
	Source              string        `json:"source"`
	Healthy             bool          `json:"healthy"`
	LastSuccess         time.Time     `json:"lastSuccess,omitzero"`
	LastError           string        `json:"lastError,omitempty"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	AvgResponseTime     time.Duration `json:"avgResponseTimeNs"`
}

// HealthTracker keeps rolling success/failure/latency bookkeeping for
// one adapter. It is safe for concurrent use.
type HealthTracker struct {
	mu                  sync.Mutex
	source              string
	clock               clockwork.Clock
	lastSuccess         time.Time
	lastError           string
	consecutiveFailures int
	latencies           []time.Duration
}

// NewHealthTracker creates a tracker for the named source.
func NewHealthTracker(source string) *HealthTracker {
	return &HealthTracker{
		source: source,
		clock:  clockwork.NewRealClock(),
	}
}

// SetClock swaps the time source so tests can freeze time.
func (t *HealthTracker) SetClock(c clockwork.Clock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clock = c
}

// RecordSuccess resets the consecutive-failure count and records the
// fetch latency into the bounded rolling window.
func (t *HealthTracker) RecordSuccess(latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.consecutiveFailures = 0
	t.lastError = ""
	t.lastSuccess = t.clock.Now()

	t.latencies = append(t.latencies, latency)
	if len(t.latencies) > latencyWindow {
		t.latencies = t.latencies[len(t.latencies)-latencyWindow:]
	}
}

// RecordFailure increments the consecutive-failure count and keeps the
// error message for the health snapshot.
func (t *HealthTracker) RecordFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.consecutiveFailures++
	if err != nil {
		t.lastError = err.Error()
	}
}

// Status returns the current health snapshot.
func (t *HealthTracker) Status() HealthStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	return HealthStatus{
		Source:              t.source,
		Healthy:             t.consecutiveFailures < unhealthyAfter,
		LastSuccess:         t.lastSuccess,
		LastError:           t.lastError,
		ConsecutiveFailures: t.consecutiveFailures,
		AvgResponseTime:     t.avgLatency(),
	}
}

func (t *HealthTracker) avgLatency() time.Duration {
	if len(t.latencies) == 0 {
		return 0
	}
	var sum time.Duration
	for _, l := range t.latencies {
		sum += l
	}
	return sum / time.Duration(len(t.latencies))
}
