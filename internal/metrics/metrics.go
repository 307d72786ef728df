// Package metrics implements Prometheus metrics for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EdgeEventsReceivedTotal counts events accepted onto a buffer edge.
	EdgeEventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otus_edge_events_received_total",
			Help: "Total number of events accepted onto a buffer edge",
		},
		[]string{"edge"},
	)

	// EdgeEventsSentTotal counts events dequeued from a buffer edge.
	EdgeEventsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otus_edge_events_sent_total",
			Help: "Total number of events dequeued from a buffer edge",
		},
		[]string{"edge"},
	)

	// EdgeEventsDroppedTotal counts events discarded under a DropNewest policy.
	EdgeEventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otus_edge_events_dropped_total",
			Help: "Total number of events dropped by a drop_newest buffer edge",
		},
		[]string{"edge"},
	)

	// EdgeBufferedEvents gauges how many events are currently queued on an edge.
	EdgeBufferedEvents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "otus_edge_buffered_events",
			Help: "Current number of events queued on a buffer edge",
		},
		[]string{"edge"},
	)

	// SinkDeliveredTotal counts events a sink resolved Delivered.
	SinkDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otus_sink_delivered_total",
			Help: "Total number of events a sink resolved as delivered",
		},
		[]string{"sink"},
	)

	// SinkErroredTotal counts events a sink resolved Errored or Rejected.
	SinkErroredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otus_sink_errored_total",
			Help: "Total number of events a sink resolved as errored or rejected",
		},
		[]string{"sink", "status"},
	)

	// ComponentStatus tracks the running status of a topology component.
	ComponentStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "otus_component_status",
			Help: "Current status of a topology component (0=stopped, 1=running, 2=error)",
		},
		[]string{"component", "kind"},
	)

	// ShutdownDurationSeconds measures how long a source took to release its
	// shutdown token after being asked to stop.
	ShutdownDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otus_shutdown_duration_seconds",
			Help:    "Time a source took to complete graceful shutdown",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
		[]string{"source"},
	)
)

// Component status values: a topology component's status as a numeric
// value for the ComponentStatus gauge.
const (
	ComponentStopped = 0
	ComponentRunning = 1
	ComponentError   = 2
)
