package setfn

import "github.com/RobertWHurst/conduit"

// Middleware creates middleware that sets a value computed per message on the
// message-level context. valueFn is called once for every message.
//
// Example:
//
//	server.Use(setfn.Middleware("requestID", func() string {
//	    return uuid.NewString()
//	}))
//
// See also: set.Middleware for constant values.
func Middleware[V any](key string, valueFn func() V) conduit.HandlerFunc {
	return func(ctx *conduit.Context) error {
		ctx.Set(key, valueFn())
		return ctx.Next()
	}
}
