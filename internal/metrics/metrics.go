// Package metrics holds the prometheus instrumentation shared by the edge
// router and the dispatch loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EdgeRequests counts router decisions by outcome
	// (passthrough, redirect, not_found, proxy, error).
	EdgeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_requests_total",
		Help: "The total number of edge router requests by routing decision",
	}, []string{"decision"})

	ResolverLookups = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_resolver_lookups_total",
		Help: "The total number of calls to the tenant resolver endpoint",
	})

	ResolverCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_resolver_cache_hits_total",
		Help: "The total number of tenant resolutions served from cache",
	})

	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_events_processed_total",
		Help: "The total number of inbox events marked processed",
	})

	EventsIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_events_ignored_total",
		Help: "The total number of inbox events marked ignored",
	})

	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_notifications_sent_total",
		Help: "The total number of notifications delivered successfully",
	})

	NotificationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_notification_retries_total",
		Help: "The total number of delivery attempts scheduled for retry",
	})

	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_notification_failures_total",
		Help: "The total number of notifications that reached terminal failure",
	})

	TickStageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_tick_stage_errors_total",
		Help: "The total number of stage call failures during scheduler ticks",
	}, []string{"stage"})
)
