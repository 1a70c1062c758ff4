package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "query_fetches_issued_total",
			Help: "Total number of product fetches issued after the debounce window settled",
		},
	)

	staleResponsesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "query_stale_responses_total",
			Help: "Total number of product responses discarded because a newer generation was issued",
		},
	)

	debounceRestartsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "query_debounce_restarts_total",
			Help: "Total number of pending debounce timers replaced by a newer filter change",
		},
	)

	fetchFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "query_fetch_failures_total",
			Help: "Total number of current-generation fetches that resolved to an empty list because of an upstream failure",
		},
	)
)
