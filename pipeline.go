package conduit

import (
	"context"
	"sync"

	"github.com/grafana/regexp"
)

// Pipeline is the ordered middleware chain every inbound message is run
// through. Entries run in registration order. A method handler that matches
// consumes the message; later entries never see it.
type Pipeline struct {
	mu           sync.RWMutex
	entries      []HandlerFunc
	errorHandler ErrorHandlerFunc

	// methods and patterns are what metricLabel may report, keeping label
	// values bounded by what the application registered.
	methods  map[string]struct{}
	patterns []methodPattern
}

type methodPattern struct {
	expr    string
	pattern *regexp.Regexp
}

// UnmatchedMethodLabel is reported to Metrics in place of methods that no
// OnMessage or OnMessagePattern handler was registered for.
const UnmatchedMethodLabel = "unmatched"

// NewPipeline returns an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Use appends middleware to the chain.
//
//	pipeline.Use(func(ctx *conduit.Context) error {
//	    log.Printf("message %s from %s", ctx.Method(), ctx.ConnectionID())
//	    return ctx.Next()
//	})
func (p *Pipeline) Use(handlers ...HandlerFunc) {
	if len(handlers) == 0 {
		panic(&ValidationError{Field: "handlers", Reason: "no handlers provided"})
	}
	for _, handler := range handlers {
		if handler == nil {
			panic(&ValidationError{Field: "handler", Reason: "must not be nil"})
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, handlers...)
}

// OnMessage appends a handler for messages whose method equals method. When
// it matches, the handler is called and the chain stops there. Otherwise the
// message moves on to the next entry.
func (p *Pipeline) OnMessage(method string, handler MessageHandlerFunc) {
	if method == "" {
		panic(&ValidationError{Field: "method", Reason: "must not be empty"})
	}
	if handler == nil {
		panic(&ValidationError{Field: "handler", Reason: "must not be nil"})
	}

	p.mu.Lock()
	if p.methods == nil {
		p.methods = map[string]struct{}{}
	}
	p.methods[method] = struct{}{}
	p.mu.Unlock()

	p.Use(func(ctx *Context) error {
		if ctx.message.Method != method {
			return ctx.Next()
		}
		return handler(ctx, ctx.message.Data)
	})
}

// OnMessagePattern is like OnMessage but the filter is a regular expression
// which must match the whole method.
//
//	pipeline.OnMessagePattern(`chat\..+`, chatHandler)
func (p *Pipeline) OnMessagePattern(expr string, handler MessageHandlerFunc) {
	if handler == nil {
		panic(&ValidationError{Field: "handler", Reason: "must not be nil"})
	}
	pattern, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		panic(&ValidationError{Field: "pattern", Reason: "must be a valid regular expression", Err: err})
	}

	p.mu.Lock()
	p.patterns = append(p.patterns, methodPattern{expr: expr, pattern: pattern})
	p.mu.Unlock()

	p.Use(func(ctx *Context) error {
		if !pattern.MatchString(ctx.message.Method) {
			return ctx.Next()
		}
		return handler(ctx, ctx.message.Data)
	})
}

// OnError sets the error handler. There is a single slot; setting a new
// handler replaces the previous one and nil clears it.
func (p *Pipeline) OnError(handler ErrorHandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorHandler = handler
}

// Mount replays every operation recorded on remote onto the pipeline, with
// namespace used as the method filter for recorded OnMessage handlers.
func (p *Pipeline) Mount(namespace string, remote *Remote) {
	if remote == nil {
		panic(&ValidationError{Field: "remote", Reason: "must not be nil"})
	}
	remote.replay(namespace, p)
}

// metricLabel maps an inbound method to a label value: the method itself
// when an OnMessage handler exists for it, the expression of the first
// matching OnMessagePattern handler, or UnmatchedMethodLabel.
func (p *Pipeline) metricLabel(method string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.methods[method]; ok {
		return method
	}
	for _, mp := range p.patterns {
		if mp.pattern.MatchString(method) {
			return mp.expr
		}
	}
	return UnmatchedMethodLabel
}

func (p *Pipeline) handleError(err error, connectionID string, message *Message) bool {
	p.mu.RLock()
	errorHandler := p.errorHandler
	p.mu.RUnlock()

	if errorHandler == nil {
		return false
	}
	errorHandler(err, connectionID, message)
	return true
}

// Run executes the chain for one message. If a middleware fails and an error
// handler is set, the handler receives the error and Run returns nil.
// Without an error handler the error is returned. A nil message fails with
// a *ValidationError.
func (p *Pipeline) Run(ctx context.Context, commands *Commands, connectionID string, message *Message) error {
	if message == nil {
		return &ValidationError{Field: "message", Reason: "must not be nil"}
	}
	var connection *Connection
	if commands != nil {
		connection, _ = commands.registry.Get(connectionID)
	}
	_, err := p.run(ctx, commands, connection, connectionID, message)
	return err
}

// run reports whether the message ran off the end of the chain along with
// the chain's error.
func (p *Pipeline) run(ctx context.Context, commands *Commands, connection *Connection, connectionID string, message *Message) (bool, error) {
	p.mu.RLock()
	entries := p.entries
	p.mu.RUnlock()

	c := contextFromPool()
	c.ctx = ctx
	c.commands = commands
	c.connection = connection
	c.connectionID = connectionID
	c.message = message
	c.entries = entries

	err := c.Next()
	dropped := c.dropped
	c.free()

	if err == nil {
		return dropped, nil
	}
	if p.handleError(err, connectionID, message) {
		return false, nil
	}
	return false, err
}
