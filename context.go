package conduit

import (
	"context"
	"sync"
)

// Context is passed to every middleware and handler invoked for a single
// inbound message. It is only valid until the pipeline returns; handlers
// must not keep it around.
type Context struct {
	ctx          context.Context
	connection   *Connection
	connectionID string
	message      *Message
	commands     *Commands

	entries []HandlerFunc
	index   int
	active  int
	err     error
	dropped bool

	associatedValues map[string]any
}

var contextPool = sync.Pool{
	New: func() any {
		return &Context{
			associatedValues: map[string]any{},
		}
	},
}

func contextFromPool() *Context {
	ctx := contextPool.Get().(*Context)

	ctx.ctx = nil
	ctx.connection = nil
	ctx.connectionID = ""
	ctx.message = nil
	ctx.commands = nil

	ctx.entries = nil
	ctx.index = -1
	ctx.active = -1
	ctx.err = nil
	ctx.dropped = false

	for k := range ctx.associatedValues {
		delete(ctx.associatedValues, k)
	}

	return ctx
}

func (c *Context) free() {
	contextPool.Put(c)
}

// ConnectionID returns the id of the connection the message arrived on.
func (c *Context) ConnectionID() string {
	return c.connectionID
}

// Message returns the inbound message.
func (c *Context) Message() *Message {
	return c.message
}

// Method is shorthand for Message().Method.
func (c *Context) Method() string {
	return c.message.Method
}

// Context returns the context.Context for this message. It carries the
// message deadline when a message timeout is configured.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// SetContext replaces the context.Context seen by the rest of the chain.
// Middleware uses it to attach values such as trace spans.
func (c *Context) SetContext(ctx context.Context) {
	c.ctx = ctx
}

// Err returns the first error raised while processing this message.
func (c *Context) Err() error {
	return c.err
}

// Commands returns the command API of the server the message arrived on.
func (c *Context) Commands() *Commands {
	return c.commands
}

// Send sends a message back to the connection this message arrived on.
func (c *Context) Send(method string, data any) error {
	if c.commands == nil {
		return ErrNoConnection
	}
	return c.commands.Send(c.connectionID, method, data)
}

// Close closes the connection this message arrived on with the given
// status. Eviction happens once the chain returns.
func (c *Context) Close(status Status, reason string) error {
	if c.connection == nil {
		return ErrNoConnection
	}
	return c.connection.close(status, reason)
}

// Set stores a value for the rest of this message's chain.
func (c *Context) Set(key string, value any) {
	c.associatedValues[key] = value
}

// Get retrieves a value stored with Set.
func (c *Context) Get(key string) (any, bool) {
	value, ok := c.associatedValues[key]
	return value, ok
}

// MustGet is like Get but panics if the key is missing.
func (c *Context) MustGet(key string) any {
	value, ok := c.associatedValues[key]
	if !ok {
		panic("key not found in context: " + key)
	}
	return value
}

// SetOnConnection stores a value on the connection so later messages from
// the same connection can read it.
func (c *Context) SetOnConnection(key string, value any) {
	if c.connection != nil {
		c.connection.Set(key, value)
	}
}

// GetFromConnection retrieves a value stored with SetOnConnection.
func (c *Context) GetFromConnection(key string) (any, bool) {
	if c.connection == nil {
		return nil, false
	}
	return c.connection.Get(key)
}
