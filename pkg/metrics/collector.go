package metrics

import (
	"time"

	"github.com/cuemby/ringkv/pkg/node"
)

// RaftStatus is the slice of *raft.Integrator the collector needs. Declared
// here rather than importing pkg/raft directly, since pkg/raft instruments
// RaftApplyDuration itself and would otherwise import this package back.
type RaftStatus interface {
	IsLeader() bool
	AppliedIndex() uint64
	CommittedIndex() uint64
}

// ConnCounter is the slice of *connection.Manager the collector needs.
type ConnCounter interface {
	Len() int
}

// Collector periodically samples cluster-level state into gauges that
// aren't naturally updated at the point of change: node table size, Raft
// leadership and log progress, and cached connection count.
type Collector struct {
	table      *node.Table
	integrator RaftStatus
	connMgr    ConnCounter
	interval   time.Duration
	stopCh     chan struct{}
}

// NewCollector creates a collector sampling table, integrator and connMgr
// every interval (defaulting to 15s if interval <= 0).
func NewCollector(table *node.Table, integrator RaftStatus, connMgr ConnCounter, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		table:      table,
		integrator: integrator,
		connMgr:    connMgr,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start begins sampling in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts sampling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	NodesTotal.Set(float64(c.table.Len()))
	ConnectionsTotal.Set(float64(c.connMgr.Len()))

	if c.integrator.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}
	RaftAppliedIndex.Set(float64(c.integrator.AppliedIndex()))
	RaftCommittedIndex.Set(float64(c.integrator.CommittedIndex()))
}
