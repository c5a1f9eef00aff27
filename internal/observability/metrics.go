package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barley",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "barley",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	seedOffers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "barley",
			Subsystem: "seed",
			Name:      "offers_total",
			Help:      "Boot descriptors handed out to new Seeds.",
		},
	)
	seedInits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "barley",
			Subsystem: "seed",
			Name:      "inits_total",
			Help:      "Init environments served to booting Seeds.",
		},
	)
	seedRegistrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barley",
			Subsystem: "seed",
			Name:      "registrations_total",
			Help:      "Seed registration attempts by result.",
		},
		[]string{"result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, seedOffers, seedInits, seedRegistrations)
	})
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

func RecordSeedOffer() {
	RegisterMetrics()
	seedOffers.Inc()
}

func RecordSeedInit() {
	RegisterMetrics()
	seedInits.Inc()
}

// RecordSeedRegistration counts a registration attempt. result is one of
// "ok", "otp_mismatch" or "error".
func RecordSeedRegistration(result string) {
	RegisterMetrics()
	seedRegistrations.WithLabelValues(result).Inc()
}
