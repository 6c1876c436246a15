package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// NodesTotal is the node table size: this node plus every peer it
	// currently believes is online.
	NodesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ringkv_nodes_total",
			Help: "Total number of nodes known to this process's node table",
		},
	)

	// RaftLeader reports whether this node is the Raft leader (1) or not (0).
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ringkv_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	// RaftAppliedIndex is the last Raft log index applied to the database.
	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ringkv_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// RaftCommittedIndex is the last Raft log index known committed.
	RaftCommittedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ringkv_raft_committed_index",
			Help: "Last committed Raft log index",
		},
	)

	// CommandsTotal counts every command executed or proposed, by command
	// kind (hello, hash_get, hash_put, raft, ...) and class (read/write).
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringkv_commands_total",
			Help: "Total number of commands processed, by kind and class",
		},
		[]string{"kind", "class"},
	)

	// FrameDecodeErrorsTotal counts malformed frames observed on the wire,
	// bucketed by the reason the frame check failed.
	FrameDecodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringkv_frame_decode_errors_total",
			Help: "Total number of frame decode errors, by reason",
		},
		[]string{"reason"},
	)

	// ConnectionsTotal is the number of peer connections currently cached
	// by the connection manager.
	ConnectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ringkv_connections_total",
			Help: "Total number of cached peer connections",
		},
	)

	// RaftApplyDuration times how long handing a single committed entry to
	// the database apply loop (the DbCmdReq send) takes; the database
	// write itself happens later in that loop and is not included.
	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ringkv_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CommandDuration times command execution on the command server,
	// labeled by command kind.
	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ringkv_command_duration_seconds",
			Help:    "Command execution duration in seconds, by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RaftCommittedIndex)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(FrameDecodeErrorsTotal)
	prometheus.MustRegister(ConnectionsTotal)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(CommandDuration)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
