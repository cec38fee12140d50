package conduit

// CtxConnection returns the Connection the context's message arrived on, or
// nil when the pipeline was run without one. It is meant for packages
// building on conduit and shouldn't be needed by most handlers.
func CtxConnection(ctx *Context) *Connection {
	return ctx.connection
}

// CtxAssociatedValues returns the message-level value map. The map is reused
// once the pipeline returns.
func CtxAssociatedValues(ctx *Context) map[string]any {
	return ctx.associatedValues
}
