package conduit

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// Connection is the state the server keeps for one accepted socket. It is
// created when the handshake completes and dropped from the registry when
// the socket closes.
type Connection struct {
	id          string
	remoteAddr  string
	headers     http.Header
	connectedAt time.Time
	transport   SocketConnection

	mu       sync.Mutex
	incoming []Message
	outgoing []Message
	values   map[string]any

	writeMu sync.Mutex

	// busy is set while the connection's own goroutine runs hooks or
	// handlers, which is when waiting on done would never return.
	busy atomic.Bool

	closeOnce   sync.Once
	closeErr    error
	closeStatus Status
	closed      chan struct{}
	done        chan struct{}
}

func newConnection(id string, info *ConnectionInfo, transport SocketConnection) *Connection {
	conn := &Connection{
		id:          id,
		connectedAt: time.Now(),
		transport:   transport,
		values:      map[string]any{},
		closed:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	if info != nil {
		conn.remoteAddr = info.RemoteAddr
		conn.headers = info.Headers.Clone()
	}
	return conn
}

// ID returns the id assigned to the connection when it was accepted.
func (c *Connection) ID() string {
	return c.id
}

// RemoteAddr returns the remote address captured at accept time.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// Headers returns a copy of the headers sent with the upgrade request.
func (c *Connection) Headers() http.Header {
	return c.headers.Clone()
}

// ConnectedAt returns the time the connection was accepted.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// Set stores a value on the connection. Values live until the connection is
// removed from the registry.
func (c *Connection) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get retrieves a value previously stored with Set.
func (c *Connection) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[key]
	return value, ok
}

// Done is closed once the connection's read loop has exited, the connection
// was removed from the registry, and close hooks have run.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) recordIncoming(message *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incoming = append(c.incoming, *message)
}

// write sends a frame and logs the message. Both happen under writeMu so the
// outgoing log follows the order frames hit the wire.
func (c *Connection) write(ctx context.Context, frame []byte, message *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	if err := c.transport.Write(ctx, &SocketMessage{
		Type: websocket.MessageText,
		Data: frame,
	}); err != nil {
		return err
	}

	c.mu.Lock()
	c.outgoing = append(c.outgoing, *message)
	c.mu.Unlock()

	return nil
}

// close asks the transport to close. Only the first call reaches the
// transport; later calls return the first result.
func (c *Connection) close(status Status, reason string) error {
	c.closeOnce.Do(func() {
		c.closeStatus = status
		close(c.closed)
		c.closeErr = c.transport.Close(status, reason)
	})
	return c.closeErr
}

// closedByServer reports whether close was called, and with which status.
func (c *Connection) closedByServer() (Status, bool) {
	select {
	case <-c.closed:
		return c.closeStatus, true
	default:
		return 0, false
	}
}

// ConnectionSnapshot is a point in time copy of a connection's state. It
// shares no memory with the live connection.
type ConnectionSnapshot struct {
	ID          string      `json:"id"`
	RemoteAddr  string      `json:"remoteAddress"`
	ConnectedAt time.Time   `json:"connectedAt"`
	Headers     http.Header `json:"headers,omitempty"`
	Incoming    []Message   `json:"incoming"`
	Outgoing    []Message   `json:"outgoing"`
}

func (c *Connection) snapshot() ConnectionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := ConnectionSnapshot{
		ID:          c.id,
		RemoteAddr:  c.remoteAddr,
		ConnectedAt: c.connectedAt,
		Headers:     c.headers.Clone(),
		Incoming:    make([]Message, len(c.incoming)),
		Outgoing:    make([]Message, len(c.outgoing)),
	}
	for i := range c.incoming {
		snapshot.Incoming[i] = c.incoming[i].clone()
	}
	for i := range c.outgoing {
		snapshot.Outgoing[i] = c.outgoing[i].clone()
	}
	return snapshot
}
