package conduit

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// SocketMessage is a single frame read from or written to a SocketConnection.
type SocketMessage struct {
	Type websocket.MessageType
	Data []byte
}

// SocketConnection is the transport a Connection is driven by. The server
// uses WebSocketConnection for HTTP upgrades; custom transports can be
// plugged in through Server.HandleConnection.
//
// Read must return an error once the connection is closed, either by the
// peer or by a call to Close. Write may be called concurrently with Read.
type SocketConnection interface {
	Read(ctx context.Context) (*SocketMessage, error)
	Write(ctx context.Context, msg *SocketMessage) error
	Close(status Status, reason string) error
}

// ConnectionInfo describes the request a connection was accepted from.
type ConnectionInfo struct {
	RemoteAddr string
	Headers    http.Header
}

// WebSocketConnection is a SocketConnection backed by a
// github.com/coder/websocket.Conn.
type WebSocketConnection struct {
	webSocketConnection *websocket.Conn
}

var _ SocketConnection = &WebSocketConnection{}

// NewWebSocketConnection wraps a coder/websocket connection. Most applications
// never need this; it is used by ServeHTTP.
func NewWebSocketConnection(websocketConnection *websocket.Conn) *WebSocketConnection {
	return &WebSocketConnection{
		webSocketConnection: websocketConnection,
	}
}

func (c *WebSocketConnection) Read(ctx context.Context) (*SocketMessage, error) {
	messageType, data, err := c.webSocketConnection.Read(ctx)
	if err != nil {
		return nil, err
	}
	return &SocketMessage{
		Type: messageType,
		Data: data,
	}, nil
}

func (c *WebSocketConnection) Write(ctx context.Context, msg *SocketMessage) error {
	return c.webSocketConnection.Write(ctx, msg.Type, msg.Data)
}

func (c *WebSocketConnection) Close(status Status, reason string) error {
	return c.webSocketConnection.Close(status, reason)
}
