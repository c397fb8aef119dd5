// Package metrics exposes prometheus counters for the broker's hot paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framekeeper_resources_ingested_total",
		Help: "Resources ingested into the registry.",
	})

	RotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framekeeper_key_rotations_total",
		Help: "Key rotations performed, by trigger.",
	}, []string{"trigger"})

	AuthFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framekeeper_auth_failures_total",
		Help: "Failed resource or session authorizations.",
	})

	ReconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framekeeper_reconcile_runs_total",
		Help: "Album reconcile runs, by outcome.",
	}, []string{"outcome"})

	SweptResourcesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framekeeper_swept_resources_total",
		Help: "Hard-expired resources removed by the sweeper.",
	})

	SweptSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framekeeper_swept_update_sessions_total",
		Help: "Stale update sessions removed by the sweeper.",
	})
)
