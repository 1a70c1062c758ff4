package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_upstream_requests_total",
			Help: "Total number of requests sent to the catalog service",
		},
		[]string{"endpoint", "outcome"},
	)

	upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_upstream_request_duration_seconds",
			Help:    "Catalog service request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	invalidProductsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_invalid_products_total",
			Help: "Total number of catalog products dropped for failing validation",
		},
	)
)

// Request outcomes.
const (
	outcomeOK        = "ok"
	outcomeCanceled  = "canceled"
	outcomeTransport = "transport_error"
	outcomeParse     = "parse_error"
)

func observeRequest(endpoint string, err error, elapsed time.Duration) {
	upstreamRequestsTotal.WithLabelValues(endpoint, outcome(err)).Inc()
	upstreamRequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, context.Canceled):
		return outcomeCanceled
	case errors.Is(err, ErrParse):
		return outcomeParse
	default:
		return outcomeTransport
	}
}
