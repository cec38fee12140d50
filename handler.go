package conduit

import (
	"encoding/json"
	"net/http"
)

// HandlerFunc is a middleware entry in the message pipeline. Middleware calls
// ctx.Next() to continue down the chain and returns any error it wants
// reported. Not calling Next ends the chain for that message.
type HandlerFunc func(ctx *Context) error

// MessageHandlerFunc handles messages whose method matched the filter it was
// registered with. It receives the message data still encoded.
type MessageHandlerFunc func(ctx *Context, data json.RawMessage) error

// ErrorHandlerFunc receives errors returned or panicked by middleware. The
// message is nil when the error is a *MalformedMessageError.
type ErrorHandlerFunc func(err error, connectionID string, message *Message)

// OpenHookFunc is called after a connection has been registered.
type OpenHookFunc func(connectionID string)

// CloseHookFunc is called after a connection has been removed from the
// registry.
type CloseHookFunc func(connectionID string, status Status)

// GateFunc decides whether an upgrade request may proceed. It must call
// exactly one of proceed or reject, either before returning or later from
// another goroutine. Only the first call counts.
type GateFunc func(proceed, reject func(), req *http.Request)
