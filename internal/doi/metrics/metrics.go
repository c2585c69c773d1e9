package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the doi module.
// Tracks lifecycle transitions, handle registrations and index sync outcomes.
type Metrics struct {
	Transitions          *prometheus.CounterVec
	RegistrationFailures prometheus.Counter
	RegistrationDuration prometheus.Histogram
	IndexJobsEnqueued    prometheus.Counter
	IndexSyncFailures    prometheus.Counter
	QueryDuration        prometheus.Histogram
}

// New creates a new Metrics instance with all doi module metrics registered.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "doria_doi_transitions_total",
			Help: "Total number of DOI lifecycle transitions by target state",
		}, []string{"to"}),
		RegistrationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "doria_handle_registration_failures_total",
			Help: "Total number of failed handle registrations",
		}),
		RegistrationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "doria_handle_registration_duration_seconds",
			Help:    "Duration of handle registration calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		IndexJobsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "doria_index_jobs_enqueued_total",
			Help: "Total number of index sync jobs enqueued",
		}),
		IndexSyncFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "doria_index_sync_failures_total",
			Help: "Total number of swallowed index sync failures",
		}),
		QueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "doria_search_query_duration_seconds",
			Help:    "Duration of search backend queries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveRegistration records the duration of a handle registration call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegistration(start time.Time) {
	m.RegistrationDuration.Observe(time.Since(start).Seconds())
}

// ObserveQuery records the duration of a search backend query.
func (m *Metrics) ObserveQuery(start time.Time) {
	m.QueryDuration.Observe(time.Since(start).Seconds())
}
