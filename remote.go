package conduit

// RemoteOpKind identifies a registration recorded on a Remote.
type RemoteOpKind int

const (
	// OnMessageOp records a method handler without a filter. The namespace
	// given at mount time becomes its filter.
	OnMessageOp RemoteOpKind = iota
	// UseOp records raw middleware. It is replayed unchanged.
	UseOp
	// OnMessagePatternOp records a pattern handler. It is replayed unchanged.
	OnMessagePatternOp
)

// RemoteOp is a single recorded registration.
type RemoteOp struct {
	Kind           RemoteOpKind
	Pattern        string
	Handler        HandlerFunc
	MessageHandler MessageHandlerFunc
}

var remoteReplayers = map[RemoteOpKind]func(target *Pipeline, namespace string, op RemoteOp){
	OnMessageOp: func(target *Pipeline, namespace string, op RemoteOp) {
		target.OnMessage(namespace, op.MessageHandler)
	},
	UseOp: func(target *Pipeline, _ string, op RemoteOp) {
		target.Use(op.Handler)
	},
	OnMessagePatternOp: func(target *Pipeline, _ string, op RemoteOp) {
		target.OnMessagePattern(op.Pattern, op.MessageHandler)
	},
}

// Remote records handler registrations without being attached to a server.
// A module can build a Remote for its handlers and leave the choice of
// namespace to whoever mounts it:
//
//	remote := conduit.NewRemote().
//	    OnMessage(func(ctx *conduit.Context, data json.RawMessage) error {
//	        return ctx.Send("message", "goodbye")
//	    })
//
//	server.Mount("data", remote)
type Remote struct {
	ops []RemoteOp
}

// NewRemote returns an empty Remote.
func NewRemote() *Remote {
	return &Remote{}
}

// OnMessage records a handler that will be filtered by the mount namespace.
func (r *Remote) OnMessage(handler MessageHandlerFunc) *Remote {
	if handler == nil {
		panic(&ValidationError{Field: "handler", Reason: "must not be nil"})
	}
	r.ops = append(r.ops, RemoteOp{Kind: OnMessageOp, MessageHandler: handler})
	return r
}

// Use records middleware.
func (r *Remote) Use(handler HandlerFunc) *Remote {
	if handler == nil {
		panic(&ValidationError{Field: "handler", Reason: "must not be nil"})
	}
	r.ops = append(r.ops, RemoteOp{Kind: UseOp, Handler: handler})
	return r
}

// OnMessagePattern records a pattern handler. The pattern is not namespaced.
func (r *Remote) OnMessagePattern(expr string, handler MessageHandlerFunc) *Remote {
	if handler == nil {
		panic(&ValidationError{Field: "handler", Reason: "must not be nil"})
	}
	r.ops = append(r.ops, RemoteOp{Kind: OnMessagePatternOp, Pattern: expr, MessageHandler: handler})
	return r
}

// Ops returns a copy of the recorded operations in recording order.
func (r *Remote) Ops() []RemoteOp {
	ops := make([]RemoteOp, len(r.ops))
	copy(ops, r.ops)
	return ops
}

func (r *Remote) replay(namespace string, target *Pipeline) {
	for _, op := range r.ops {
		replayer, ok := remoteReplayers[op.Kind]
		if !ok {
			panic(&ValidationError{Field: "remote", Reason: "unknown recorded operation"})
		}
		replayer(target, namespace, op)
	}
}
