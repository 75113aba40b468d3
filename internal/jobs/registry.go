package jobs

import (
	"sort"
	"sync"

	"medwriter-client/internal/shared/logging"
)

// Registry multiplexes the connections for all tracked background jobs,
// guaranteeing at most one live connection per job id.
type Registry struct {
	backend Backend
	opts    Options

	mu    sync.Mutex
	conns map[string]*Connection
}

// NewRegistry constructs a Registry using backend for all connections.
func NewRegistry(backend Backend, opts Options) *Registry {
	return &Registry{
		backend: backend,
		opts:    opts,
		conns:   make(map[string]*Connection),
	}
}

// Track opens a connection for jobID. An existing connection for the same
// id is torn down first, so there are never duplicate live channels for one
// job.
func (r *Registry) Track(jobID string, cb Callbacks) *Connection {
	conn := newConnection(jobID, r.backend, cb, r.opts)
	conn.onClosed = func() { r.remove(jobID, conn) }

	r.mu.Lock()
	prev := r.conns[jobID]
	r.conns[jobID] = conn
	r.mu.Unlock()

	if prev != nil {
		logging.Info("replacing tracked job connection", map[string]any{"job_id": jobID})
		prev.Close()
	}
	conn.connect()
	return conn
}

// Cancel closes and removes the connection for jobID, if tracked.
func (r *Registry) Cancel(jobID string) {
	r.mu.Lock()
	conn := r.conns[jobID]
	r.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// List returns the tracked job ids, sorted, for diagnostics.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll tears down every tracked connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

// remove drops the registration, but only if it still points at conn: a
// replacement registered by Track must not be evicted by the old
// connection's teardown.
func (r *Registry) remove(jobID string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[jobID] == conn {
		delete(r.conns, jobID)
	}
}
