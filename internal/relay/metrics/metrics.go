package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal tracks queries by final outcome (ok or error kind)
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botrelay_queries_total",
			Help: "Total number of queries handled",
		},
		[]string{"outcome"},
	)

	// DispatchTotal tracks per-actor dispatch attempts by verdict
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botrelay_dispatch_total",
			Help: "Total number of commands dispatched to an actor",
		},
		[]string{"actor", "verdict"},
	)

	// CollectionDuration tracks how long a session stayed open
	CollectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botrelay_collection_duration_seconds",
			Help:    "Collection session duration in seconds",
			Buckets: []float64{1, 2, 4, 6, 8, 12, 20, 35, 50, 70},
		},
		[]string{"actor", "state"},
	)

	// MessagesCollected tracks accepted messages per session
	MessagesCollected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botrelay_messages_per_session",
			Help:    "Number of messages accepted per collection session",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"actor"},
	)

	// ActorBlocked is 1 while the circuit breaker holds the actor out of rotation
	ActorBlocked = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "botrelay_actor_blocked",
			Help: "Whether the actor is blocked by the circuit breaker",
		},
		[]string{"actor"},
	)

	// Failovers tracks hops from one actor to the next
	Failovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botrelay_failovers_total",
			Help: "Total number of failovers away from an actor",
		},
		[]string{"from", "reason"},
	)

	// CacheLookups tracks result cache hits and misses
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botrelay_cache_lookups_total",
			Help: "Total number of result cache lookups (hit, miss, stale, error)",
		},
		[]string{"result"},
	)

	// MediaFiles tracks media files written and pruned
	MediaFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botrelay_media_files_total",
			Help: "Total number of media files stored or removed",
		},
		[]string{"op"},
	)
)
