package connset

import "github.com/RobertWHurst/conduit"

// Middleware creates middleware that stores a value on the connection. The
// value stays readable with GetFromConnection for every later message on the
// same connection.
//
//	server.Use(connset.Middleware("tier", "free"))
//
// See also: connsetfn.Middleware for values computed once per connection.
func Middleware[V any](key string, value V) conduit.HandlerFunc {
	return func(ctx *conduit.Context) error {
		ctx.SetOnConnection(key, value)
		return ctx.Next()
	}
}
