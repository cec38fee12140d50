package set

import "github.com/RobertWHurst/conduit"

// Middleware creates middleware that sets a value on the message-level context.
// The value is fixed when the middleware is created and reused for every
// message. It only lives for the duration of that message's chain.
//
// Example:
//
//	server.Use(set.Middleware("apiVersion", "v1"))
//
//	server.OnMessage("info", func(ctx *conduit.Context, data json.RawMessage) error {
//	    version := ctx.MustGet("apiVersion").(string)  // "v1"
//	    return ctx.Send("info", map[string]string{"version": version})
//	})
//
// See also: setfn.Middleware for values computed per message.
func Middleware[V any](key string, value V) conduit.HandlerFunc {
	return func(ctx *conduit.Context) error {
		ctx.Set(key, value)
		return ctx.Next()
	}
}
