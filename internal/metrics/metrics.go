// Package metrics implements Prometheus metrics not already covered by
// a status.Snapshot field (queue drops, rotations, reaper deletions,
// control-surface RPC activity).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDropsTotal counts messages dropped by the bounded queue,
	// by topic.
	QueueDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bagrecorder_queue_drops_total",
			Help: "Total number of messages dropped due to queue overflow",
		},
		[]string{"topic"},
	)

	// RateLimitDropsTotal counts messages dropped by a topic's rate
	// limit.
	RateLimitDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bagrecorder_rate_limit_drops_total",
			Help: "Total number of messages dropped by a topic's rate limit",
		},
		[]string{"topic"},
	)

	// BagRotationsTotal counts bag segment rotations.
	BagRotationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bagrecorder_bag_rotations_total",
			Help: "Total number of bag segment rotations",
		},
	)

	// ReaperDeletionsTotal counts files removed by the disk reaper.
	ReaperDeletionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bagrecorder_reaper_deletions_total",
			Help: "Total number of bag files deleted by the disk reaper",
		},
	)

	// ReaperShortfallsTotal counts reaper passes that could not meet
	// the configured directory budget.
	ReaperShortfallsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bagrecorder_reaper_shortfalls_total",
			Help: "Total number of reaper passes that could not meet the directory budget",
		},
	)

	// ControlRequestsTotal counts JSON-RPC requests served by the
	// control surface, by method and outcome.
	ControlRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bagrecorder_control_requests_total",
			Help: "Total number of control-surface RPC requests",
		},
		[]string{"method", "outcome"},
	)
)
