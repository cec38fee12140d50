package connsetfn

import "github.com/RobertWHurst/conduit"

// Middleware creates middleware that stores a value on the connection the
// first time a message arrives on it. valueFn runs once per connection.
//
//	server.Use(connsetfn.Middleware("sessionStart", time.Now))
//
// For setup that must happen before any message, use Server.OnConnection.
func Middleware[V any](key string, valueFn func() V) conduit.HandlerFunc {
	return func(ctx *conduit.Context) error {
		if _, ok := ctx.GetFromConnection(key); !ok {
			ctx.SetOnConnection(key, valueFn())
		}
		return ctx.Next()
	}
}
