// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
)

var (
	// ResolutionsTotal tracks finished resolutions by outcome and entry point
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "identity",
			Name:      "resolutions_total",
			Help:      "Total number of fragment resolutions by outcome",
		},
		[]string{"outcome", "source"},
	)

	// ResolutionErrorsTotal tracks failed resolutions by error kind
	ResolutionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "identity",
			Name:      "resolution_errors_total",
			Help:      "Total number of failed fragment resolutions by error kind",
		},
		[]string{"kind", "source"},
	)

	// ResolutionDuration tracks resolution latency in seconds
	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "identity",
			Name:      "resolution_duration_seconds",
			Help:      "Duration of fragment resolutions in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"source"},
	)

	// ContactWritesTotal tracks contact rows written, by kind of write
	ContactWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "identity",
			Name:      "contact_writes_total",
			Help:      "Total number of contact rows created, demoted or re-parented",
		},
		[]string{"kind"},
	)

	// HTTPRequestsTotal tracks inbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks inbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)
)

// ErrorKind buckets a resolution error for labelling
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidFragment):
		return "invalid_fragment"
	case errors.Is(err, identity.ErrInconsistentCluster):
		return "inconsistent_cluster"
	case errors.Is(err, identity.ErrLockUnavailable):
		return "lock_unavailable"
	case errors.Is(err, models.ErrContactNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case identity.IsStoreError(err):
		return "store"
	default:
		return "unknown"
	}
}

// RecordHTTPRequest records an inbound HTTP request
func RecordHTTPRequest(method, route, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// Recorder is a resolution observer feeding the identity metrics
type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Name() string {
	return "metrics"
}

func (r *Recorder) Observe(_ context.Context, event identity.Event) error {
	ResolutionDuration.WithLabelValues(event.Source).Observe(event.Duration.Seconds())

	if event.Err != nil {
		ResolutionErrorsTotal.WithLabelValues(ErrorKind(event.Err), event.Source).Inc()
		return nil
	}
	if event.Resolution == nil {
		return nil
	}

	ResolutionsTotal.WithLabelValues(string(event.Resolution.Outcome), event.Source).Inc()
	ContactWritesTotal.WithLabelValues("created").Add(float64(len(event.Resolution.Created)))
	ContactWritesTotal.WithLabelValues("demoted").Add(float64(len(event.Resolution.Demoted)))
	ContactWritesTotal.WithLabelValues("relinked").Add(float64(len(event.Resolution.Relinked)))
	return nil
}
