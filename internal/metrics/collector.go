package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AlertCounter tracks how many times a keyed event (an auth failure for
// a given user, a replay attempt from a given source, ...) happened
// within a trailing window, and reports when a threshold is crossed.
// Each key keeps a capped slice of event timestamps rather than a single
// cumulative count, so the threshold check is a true sliding window
// instead of "N since process start".
type AlertCounter struct {
	mu       sync.Mutex
	window   time.Duration
	limit    int
	events   map[string][]time.Time
	total    *prometheus.CounterVec
	triggers *prometheus.CounterVec
}

// NewAlertCounter builds an AlertCounter that fires once a key accumulates
// more than limit events within window, registering its own "<name>_total"
// and "<name>_triggered_total" CounterVecs on Registry.
func NewAlertCounter(name, help string, window time.Duration, limit int) *AlertCounter {
	return &AlertCounter{
		window: window,
		limit:  limit,
		events: make(map[string][]time.Time),
		total: promauto.With(Registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      name + "_total",
				Help:      help,
			},
			[]string{"key"},
		),
		triggers: promauto.With(Registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      name + "_triggered_total",
				Help:      help + " (threshold crossed)",
			},
			[]string{"key"},
		),
	}
}

// Record logs one occurrence of the event for key at now and reports
// whether the trailing-window count just crossed the configured limit.
func (a *AlertCounter) Record(key string, now time.Time) bool {
	a.total.WithLabelValues(key).Inc()

	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := now.Add(-a.window)
	kept := a.events[key][:0]
	for _, t := range a.events[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	a.events[key] = kept

	if len(kept) > a.limit {
		a.triggers.WithLabelValues(key).Inc()
		return true
	}
	return false
}

// Reset drops all tracked state for key, e.g. after an operator clears an
// alert.
func (a *AlertCounter) Reset(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.events, key)
}

// Alert budgets: 5 authentication failures per user within 5 minutes,
// 3 replay attempts per source within 10 minutes, 2 KEP signature
// failures per user within 10 minutes.
var (
	AuthFailureAlerts = NewAlertCounter(
		"auth_failures", "Authentication failures tracked for threshold alerting",
		5*time.Minute, 5,
	)
	ReplayAttemptAlerts = NewAlertCounter(
		"replay_attempts", "Replay attempts tracked for threshold alerting",
		10*time.Minute, 3,
	)
	SignatureFailureAlerts = NewAlertCounter(
		"signature_failures", "KEP signature verification failures tracked for threshold alerting",
		10*time.Minute, 2,
	)
)
