package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	fetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_agent_fetch_total",
			Help: "Fetch events answered by the agent, by source",
		},
		[]string{"source"},
	)

	precacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_agent_precache_total",
			Help: "Precache attempts during install, by result",
		},
		[]string{"result"},
	)

	storeWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_agent_store_write_failures_total",
			Help: "Background store writes that failed after a live fetch",
		},
	)

	storesDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_agent_stores_deleted_total",
			Help: "Stores of other versions deleted during activate",
		},
	)

	lifecycleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_agent_lifecycle_transitions_total",
			Help: "Worker registration state transitions, by new state",
		},
		[]string{"state"},
	)
)

func init() {
	Registry.MustRegister(fetchTotal, precacheTotal, storeWriteFailures, storesDeleted, lifecycleTransitions)
}

// ObserveFetch counts a fetch event answered from source
func ObserveFetch(source string) { fetchTotal.WithLabelValues(source).Inc() }

// ObservePrecache counts a precache batch outcome
func ObservePrecache(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	precacheTotal.WithLabelValues(result).Inc()
}

func ObserveStoreWriteFailure() { storeWriteFailures.Inc() }

func ObserveStoreDeleted() { storesDeleted.Inc() }

func ObserveTransition(state string) { lifecycleTransitions.WithLabelValues(state).Inc() }

// Handler returns a promhttp handler for the Registry
func Handler() http.Handler { return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}) }
