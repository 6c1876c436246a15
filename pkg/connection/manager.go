package connection

import (
	"fmt"
	"net"
	"sync"

	"github.com/cuemby/ringkv/pkg/node"
)

// Dialer opens a new transport connection to a node; overridable in tests.
type Dialer func(n node.Node) (net.Conn, error)

// DefaultDialer dials the node's address/port over TCP.
func DefaultDialer(n node.Node) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", n.Addr.String(), n.Port)
	return net.Dial("tcp", addr)
}

// Manager is the demand-driven connection cache: one Connection per peer
// identity, dialed lazily and redialed transparently once it goes stale.
type Manager struct {
	table  *node.Table
	dial   Dialer
	mu     sync.Mutex
	byNode map[uint64]*Connection
}

// NewManager returns a manager backed by table, dialing peers with dial.
func NewManager(table *node.Table, dial Dialer) *Manager {
	if dial == nil {
		dial = DefaultDialer
	}
	return &Manager{
		table:  table,
		dial:   dial,
		byNode: make(map[uint64]*Connection),
	}
}

// Get returns the (possibly freshly dialed) connection for n, replacing any
// cached connection that is no longer open. A single dial failure does not
// evict anything it didn't already replace; the next Get simply retries.
func (m *Manager) Get(n node.Node) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn, ok := m.byNode[n.ID]; ok {
		if conn.IsOpen() {
			return conn, nil
		}
		delete(m.byNode, n.ID)
	}

	raw, err := m.dial(n)
	if err != nil {
		return nil, fmt.Errorf("connection: dial node %d: %w", n.ID, err)
	}
	conn := New(raw)
	m.byNode[n.ID] = conn
	return conn, nil
}

// GetByID resolves id against the node table and returns its connection. It
// reports ok=false if id is not currently a live peer.
func (m *Manager) GetByID(id uint64) (*Connection, bool, error) {
	n, ok := m.table.Get(id)
	if !ok {
		return nil, false, nil
	}
	conn, err := m.Get(n)
	if err != nil {
		return nil, false, err
	}
	return conn, true, nil
}

// AllConn returns a connection to every live peer except self.
func (m *Manager) AllConn() ([]*Connection, error) {
	others := m.table.OtherNodes()
	conns := make([]*Connection, 0, len(others))
	for _, n := range others {
		conn, err := m.Get(n)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

// FirstOther returns a connection to an arbitrary non-self live peer, or
// ok=false if none exist. A convenience helper with no caller in the
// consensus path; it is not part of any consensus invariant.
func (m *Manager) FirstOther() (*Connection, bool, error) {
	others := m.table.OtherNodes()
	if len(others) == 0 {
		return nil, false, nil
	}
	conn, err := m.Get(others[0])
	if err != nil {
		return nil, false, err
	}
	return conn, true, nil
}

// Len reports the number of connections currently cached.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byNode)
}
