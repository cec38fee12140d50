package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/RobertWHurst/conduit"
	"go.uber.org/zap"
)

// registerDemo wires the handlers of the demo chat server.
func registerDemo(server *conduit.Server, log *zap.Logger) {
	server.SetGate(func(proceed, reject func(), req *http.Request) {
		log.Info("upgrade requested",
			zap.String("remoteAddr", req.RemoteAddr),
			zap.String("userAgent", req.UserAgent()))
		proceed()
	})

	server.OnConnection(func(id string) {
		if err := server.Commands().BroadcastAll("new", "hi"); err != nil {
			log.Warn("failed to announce connection", zap.String("connectionId", id), zap.Error(err))
		}
	})

	server.OnClose(func(id string, status conduit.Status) {
		log.Debug("connection gone", zap.String("connectionId", id), zap.Int("status", int(status)))
	})

	server.OnMessage("default", func(ctx *conduit.Context, data json.RawMessage) error {
		if err := ctx.Send("res", "Thanks!"); err != nil {
			return err
		}
		err := ctx.Commands().BroadcastExclude(ctx.ConnectionID(), "res", "Hi, everyone!")
		if errors.Is(err, conduit.ErrNoConnection) {
			return nil
		}
		return err
	})

	server.Mount("data", dataRemote(log))

	server.OnError(func(err error, connectionID string, message *conduit.Message) {
		fields := []zap.Field{zap.String("connectionId", connectionID), zap.Error(err)}
		if message != nil {
			fields = append(fields, zap.String("method", message.Method))
		}
		log.Error("message failed", fields...)
	})
}

func dataRemote(log *zap.Logger) *conduit.Remote {
	return conduit.NewRemote().OnMessage(func(ctx *conduit.Context, data json.RawMessage) error {
		log.Debug("message on data", zap.String("connectionId", ctx.ConnectionID()), zap.ByteString("data", data))
		return ctx.Send("message", "goodbye")
	})
}
