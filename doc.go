// Package conduit manages WebSocket connections and routes the messages they
// send through an ordered middleware chain.
//
// # Quick Start
//
//	server := conduit.NewServer(conduit.WithLogger(logger))
//
//	server.OnConnection(func(id string) {
//	    _ = server.Commands().BroadcastAll("joined", id)
//	})
//
//	server.OnMessage("chat", func(ctx *conduit.Context, data json.RawMessage) error {
//	    return ctx.Commands().BroadcastExclude(ctx.ConnectionID(), "chat", data)
//	})
//
//	http.ListenAndServe(":8080", server)
//
// # Message Format
//
// Every frame in either direction is a JSON text frame:
//
//	{"method": "chat", "data": {"text": "hello"}}
//
// Frames that do not have this shape are malformed. They are dropped (or the
// connection is closed, see WithMalformedPolicy) and reported to the error
// handler as a *MalformedMessageError.
//
// # Upgrade Gate
//
// A single gate may inspect each upgrade request and call proceed or reject.
// Rejected requests have their raw connection closed without a handshake.
//
// # Pipeline
//
// Middleware runs in registration order and continues the chain with
// ctx.Next(). A method handler registered with OnMessage consumes matching
// messages; messages matched by nothing are dropped silently. Errors
// returned or panicked by middleware go to the single error handler set with
// OnError, or are logged when none is set.
//
// # Remotes
//
// A Remote records handlers without knowing where they will be mounted.
// Mounting it under a namespace registers its OnMessage handlers for the
// method equal to that namespace.
//
//	remote := conduit.NewRemote().OnMessage(dataHandler)
//	server.Mount("data", remote)
//
// # Commands
//
// Server.Commands exposes Send, BroadcastAll, BroadcastExclude, Close,
// CloseAll, Snapshot, and Exists over the server's connection registry.
package conduit
