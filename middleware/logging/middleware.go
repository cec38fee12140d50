package logging

import (
	"time"

	"github.com/RobertWHurst/conduit"
	"go.uber.org/zap"
)

// Middleware logs one line per message once the rest of the chain has run.
// Failed messages are logged at error level with the error attached.
//
//	server.Use(logging.Middleware(logger))
func Middleware(logger *zap.Logger) conduit.HandlerFunc {
	return func(ctx *conduit.Context) error {
		start := time.Now()

		err := ctx.Next()

		fields := []zap.Field{
			zap.String("connectionId", ctx.ConnectionID()),
			zap.String("method", ctx.Method()),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			logger.Error("message failed", append(fields, zap.Error(err))...)
			return err
		}
		logger.Info("message handled", fields...)
		return nil
	}
}
