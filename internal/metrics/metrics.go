package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "roombook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_commits_total",
			Help:      "Booking commit attempts by outcome.",
		},
		[]string{"outcome"},
	)

	occurrences = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_occurrences_persisted_total",
			Help:      "Booking rows written by successful commits.",
		},
	)

	commitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "booking_commit_duration_seconds",
			Help:      "Time spent committing a booking series, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	lockFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_lock_fallbacks_total",
			Help:      "Room locks taken in memory because Redis was unavailable.",
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by result.",
		},
		[]string{"result"},
	)
)

// Outcome labels for booking commits.
const (
	OutcomeCommitted  = "committed"
	OutcomeConflict   = "conflict"
	OutcomeValidation = "validation"
	OutcomeError      = "error"
)

// Notification delivery results.
const (
	NotificationDelivered = "delivered"
	NotificationRetried   = "retried"
	NotificationFailed    = "failed"
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, commits, occurrences, commitDuration, lockFallbacks, notifications)
	})
}

func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

// ObserveCommit records one commit attempt. n is the number of rows written.
func ObserveCommit(outcome string, n int, seconds float64) {
	commits.WithLabelValues(outcome).Inc()
	if n > 0 {
		occurrences.Add(float64(n))
	}
	commitDuration.Observe(seconds)
}

func IncLockFallback() {
	lockFallbacks.Inc()
}

func IncNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}
