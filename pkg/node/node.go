// Package node holds cluster membership: a Node's identity and address, and
// the NodeTable that tracks who is currently reachable.
package node

import (
	"net"
	"sync"
	"time"
)

// Node is one cluster member as known by the local process.
type Node struct {
	ID     uint64
	Addr   net.IP
	Port   int
	IsSelf bool
	Online bool
}

// Table tracks live nodes keyed by identity, alongside a parallel expiry
// map so pruning scans expirations without walking the node map itself.
type Table struct {
	mu           sync.RWMutex
	ttl          time.Duration
	selfID       uint64
	nodes        map[uint64]Node
	expireUntil  map[uint64]time.Time
}

// NewTable returns an empty table that expires entries after ttl and always
// reports selfID as present regardless of ping/prune activity.
func NewTable(selfID uint64, ttl time.Duration) *Table {
	return &Table{
		ttl:         ttl,
		selfID:      selfID,
		nodes:       make(map[uint64]Node),
		expireUntil: make(map[uint64]time.Time),
	}
}

// Ping records a sighting of node, inserting it if new and always refreshing
// its TTL. An offline ping (node.Online == false) removes the node instead.
func (t *Table) Ping(n Node) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !n.Online {
		delete(t.nodes, n.ID)
		delete(t.expireUntil, n.ID)
		return
	}

	t.nodes[n.ID] = n
	t.expireUntil[n.ID] = time.Now().Add(t.ttl)
}

// Exist reports whether id is a live, unexpired member.
func (t *Table) Exist(id uint64) bool {
	if id == t.selfID {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	until, ok := t.expireUntil[id]
	if !ok {
		return false
	}
	return until.After(time.Now())
}

// Prune removes entries whose TTL has elapsed and returns how many were
// removed.
func (t *Table) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, until := range t.expireUntil {
		if until.Before(now) {
			delete(t.nodes, id)
			delete(t.expireUntil, id)
			removed++
		}
	}
	return removed
}

// Get returns the node for id and whether it is present.
func (t *Table) Get(id uint64) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// OtherNodes returns every live node except self, in no particular order.
func (t *Table) OtherNodes() []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Node, 0, len(t.nodes))
	for id, n := range t.nodes {
		if id == t.selfID || n.IsSelf {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Len reports the number of tracked members, including self once self has
// been pinged into the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}
