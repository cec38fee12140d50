package conduit

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces connection ids. Generators must not repeat an id that
// is still registered; the registry retries on a collision but a generator
// that keeps colliding will stall connection accepts.
type IDGenerator func() string

// NewUUIDGenerator returns the default generator, producing random v4 UUIDs.
func NewUUIDGenerator() IDGenerator {
	return uuid.NewString
}

// Registry maps connection ids to live connections. It is safe for
// concurrent use. Iteration follows insertion order.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	order       []string
	generateID  IDGenerator
}

// NewRegistry creates an empty registry. A nil generator selects
// NewUUIDGenerator.
func NewRegistry(generateID IDGenerator) *Registry {
	if generateID == nil {
		generateID = NewUUIDGenerator()
	}
	return &Registry{
		connections: map[string]*Connection{},
		generateID:  generateID,
	}
}

// Create registers a new connection for the given transport and returns it.
// The id is generated under the registry lock so concurrent accepts can never
// be handed the same id.
func (r *Registry) Create(info *ConnectionInfo, transport SocketConnection) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.generateID()
	for _, taken := r.connections[id]; taken || id == ""; _, taken = r.connections[id] {
		id = r.generateID()
	}

	conn := newConnection(id, info, transport)
	r.connections[id] = conn
	r.order = append(r.order, id)
	return conn
}

// Get returns the connection registered under id.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[id]
	return conn, ok
}

// Remove evicts the connection registered under id. Removing an id that is
// not registered does nothing.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[id]; !ok {
		return
	}
	delete(r.connections, id)
	for i, orderedID := range r.order {
		if orderedID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// All returns the registered connections in insertion order. The returned
// slice is a copy; the connections themselves are live.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.order))
	for _, id := range r.order {
		conns = append(conns, r.connections[id])
	}
	return conns
}

// Exists reports whether id is registered. An empty id asks whether any
// connection is registered at all.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == "" {
		return len(r.connections) != 0
	}
	_, ok := r.connections[id]
	return ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
