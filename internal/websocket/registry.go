package websocket

import (
	"sync"

	"github.com/rdxz2/t3dapi/internal/metrics"
)

// Registry indexes live connections by id
// ARCHITECTURAL DISCOVERY: Pure connection tracking; room membership lives in
// the Directory so the registry only serves stats and shutdown
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
	}
}

// RegisterConnection tracks conn until it is unregistered
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; !exists {
		metrics.ConnectionsActive.Inc()
	}
	r.connections[conn.ID()] = conn
	return nil
}

// UnregisterConnection removes conn. Idempotent.
// RACE CONDITION FIX: Only removes the entry if it is this connection instance
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.connections[conn.ID()]; exists && registered == conn {
		delete(r.connections, conn.ID())
		metrics.ConnectionsActive.Dec()
	}
}

// GetConnection returns the live connection with id
func (r *Registry) GetConnection(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[id]
	return conn, exists
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Snapshot copies the live connections
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
	}
	return connections
}

// CloseAll closes every live connection and returns how many were closed.
// Each read pump then runs its own disconnect cleanup.
func (r *Registry) CloseAll() int {
	connections := r.Snapshot()
	for _, conn := range connections {
		_ = conn.Close()
	}
	return len(connections)
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	return map[string]int{
		"total_connections": r.Count(),
	}
}
