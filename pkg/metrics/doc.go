/*
Package metrics provides Prometheus metrics collection and exposition for
ringkv.

Metrics are package-level variables registered at init time and exposed over
HTTP for scraping by a Prometheus server. A Collector samples cluster-level
state (node table size, Raft leadership and log progress, connection count)
on a timer; counters and histograms that correspond to discrete events
(commands processed, frame decode errors, command latency) are updated
directly at their call sites instead.

# Metrics Catalog

ringkv_nodes_total:
  - Type: Gauge
  - Description: Size of this node's node table (self plus live peers)

ringkv_raft_is_leader:
  - Type: Gauge
  - Description: Whether this node is the Raft leader (1) or not (0)

ringkv_raft_applied_index / ringkv_raft_committed_index:
  - Type: Gauge
  - Description: Last applied / last committed Raft log index

ringkv_commands_total{kind,class}:
  - Type: Counter
  - Description: Commands processed, labeled by command kind and class
    (read/write)

ringkv_frame_decode_errors_total{reason}:
  - Type: Counter
  - Description: Frames that failed the header/length check, by reason

ringkv_connections_total:
  - Type: Gauge
  - Description: Peer connections currently cached by the connection manager

ringkv_raft_apply_duration_seconds:
  - Type: Histogram
  - Description: Time to hand one committed Raft entry to the database
    apply loop

ringkv_command_duration_seconds{kind}:
  - Type: Histogram
  - Description: Command execution duration on the command server, by kind

# Usage

	timer := metrics.NewTimer()
	value, ok, err := cmd.Execute(database)
	timer.ObserveDurationVec(metrics.CommandDuration, cmd.KindID().String())
	metrics.CommandsTotal.WithLabelValues(cmd.KindID().String(), cmd.KindClass().String()).Inc()

# Health

Liveness and readiness are served from pkg/metrics/health.go: liveness
reports the process is up; readiness checks that raft, cmdserver and
discovery have all reported healthy at least once.
*/
package metrics
