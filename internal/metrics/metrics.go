package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "terminbuch",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	availabilityRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "terminbuch",
			Name:      "availability_requests_total",
			Help:      "Availability queries served.",
		},
	)

	holdsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "terminbuch",
			Name:      "holds_created_total",
			Help:      "Reservation holds created.",
		},
	)

	holdsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "terminbuch",
			Name:      "holds_expired_total",
			Help:      "Reservation holds expired by the sweeper.",
		},
	)

	confirmations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "terminbuch",
			Name:      "confirmations_total",
			Help:      "Holds promoted to requested or confirmed.",
		},
	)

	bookingFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "terminbuch",
			Name:      "booking_failures_total",
			Help:      "Failed booking operations by error code.",
		},
		[]string{"code"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests)
		prometheus.MustRegister(availabilityRequests)
		prometheus.MustRegister(holdsCreated)
		prometheus.MustRegister(holdsExpired)
		prometheus.MustRegister(confirmations)
		prometheus.MustRegister(bookingFailures)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncAvailability() {
	availabilityRequests.Inc()
}

func IncHoldsCreated() {
	holdsCreated.Inc()
}

func AddHoldsExpired(n int) {
	holdsExpired.Add(float64(n))
}

func IncConfirmations() {
	confirmations.Inc()
}

func IncBookingFailure(code string) {
	bookingFailures.WithLabelValues(code).Inc()
}
