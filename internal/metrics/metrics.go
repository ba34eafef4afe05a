// Package metrics defines the Prometheus collectors for sync and RPC
// activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ledgerly"

// Sync holds the client-side sync collectors.
type Sync struct {
	Attempts          *prometheus.CounterVec
	PhaseDuration     *prometheus.HistogramVec
	Uploads           *prometheus.CounterVec
	MergeChanges      *prometheus.CounterVec
	DuplicatesRemoved *prometheus.CounterVec
}

// NewSync creates the sync collectors and registers them with reg. A nil
// registerer leaves them unregistered, which is what tests want.
func NewSync(reg prometheus.Registerer) *Sync {
	m := &Sync{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "attempts_total",
			Help:      "Sync attempts by trigger and result.",
		}, []string{"trigger", "result"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "phase_duration_seconds",
			Help:      "Duration of sync phases.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "uploads_total",
			Help:      "Record uploads by kind and result.",
		}, []string{"kind", "result"}),
		MergeChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "merge_changes_total",
			Help:      "Local changes applied by merges, by kind and operation.",
		}, []string{"kind", "op"}),
		DuplicatesRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duplicates_removed_total",
			Help:      "Local duplicates deleted, by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Attempts, m.PhaseDuration, m.Uploads, m.MergeChanges, m.DuplicatesRemoved)
	}
	return m
}

// ObservePhase records how long a phase took since start.
func (m *Sync) ObservePhase(phase string, start time.Time) {
	m.PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

// RPC holds the server-side request collectors.
type RPC struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewRPC creates the RPC collectors and registers them with reg when it is
// non-nil.
func NewRPC(reg prometheus.Registerer) *RPC {
	m := &RPC{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "RPCs handled, by procedure and status code.",
		}, []string{"procedure", "code"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "RPC handling latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Duration)
	}
	return m
}
