package conduit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server accepts WebSocket connections, keeps track of them in a registry,
// and runs every inbound message through its pipeline. It implements
// http.Handler, and GinHandler mounts it into a gin engine.
type Server struct {
	opts     *options
	logger   *zap.Logger
	metrics  Metrics
	registry *Registry
	pipeline *Pipeline
	commands *Commands
	gate     upgradeGate

	hooksMu    sync.RWMutex
	openHooks  []OpenHookFunc
	closeHooks []CloseHookFunc

	ctx    context.Context
	cancel context.CancelFunc

	// lifecycleMu orders admissions against Shutdown so wg.Add never races
	// wg.Wait.
	lifecycleMu sync.Mutex
	closing     bool
	wg          sync.WaitGroup
}

var _ http.Handler = &Server{}

// NewServer creates a server with an empty registry and pipeline.
func NewServer(opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	registry := NewRegistry(o.idGenerator)
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		opts:     o,
		logger:   o.logger,
		metrics:  o.metrics,
		registry: registry,
		pipeline: NewPipeline(),
		commands: newCommands(registry, o.validator, o.logger, o.metrics, o.writeTimeout),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Commands returns the command API bound to this server's registry.
func (s *Server) Commands() *Commands {
	return s.commands
}

// Pipeline returns the message pipeline.
func (s *Server) Pipeline() *Pipeline {
	return s.pipeline
}

// SetGate sets the upgrade gate. There is a single slot; a new gate replaces
// the previous one and nil removes it, letting every upgrade through.
//
//	server.SetGate(func(proceed, reject func(), req *http.Request) {
//	    if req.Header.Get("X-Api-Key") == apiKey {
//	        proceed()
//	    } else {
//	        reject()
//	    }
//	})
func (s *Server) SetGate(gate GateFunc) {
	s.gate.set(gate)
}

// Use appends middleware to the message pipeline.
func (s *Server) Use(handlers ...HandlerFunc) {
	s.pipeline.Use(handlers...)
}

// OnMessage registers a handler for messages with the given method. The
// first matching handler consumes the message.
//
//	server.OnMessage("chat", func(ctx *conduit.Context, data json.RawMessage) error {
//	    return ctx.Commands().BroadcastExclude(ctx.ConnectionID(), "chat", data)
//	})
func (s *Server) OnMessage(method string, handler MessageHandlerFunc) {
	s.pipeline.OnMessage(method, handler)
}

// OnMessagePattern registers a handler for methods matching a regular
// expression.
func (s *Server) OnMessagePattern(expr string, handler MessageHandlerFunc) {
	s.pipeline.OnMessagePattern(expr, handler)
}

// OnError sets the pipeline error handler, replacing any previous one.
func (s *Server) OnError(handler ErrorHandlerFunc) {
	s.pipeline.OnError(handler)
}

// Mount replays a Remote onto the pipeline under namespace.
func (s *Server) Mount(namespace string, remote *Remote) {
	s.pipeline.Mount(namespace, remote)
}

// OnConnection registers a hook run after each connection is registered.
// Hooks run in registration order.
func (s *Server) OnConnection(hook OpenHookFunc) {
	if hook == nil {
		panic(&ValidationError{Field: "hook", Reason: "must not be nil"})
	}
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.openHooks = append(s.openHooks, hook)
}

// OnClose registers a hook run after each connection is removed from the
// registry. Hooks run in registration order.
func (s *Server) OnClose(hook CloseHookFunc) {
	if hook == nil {
		panic(&ValidationError{Field: "hook", Reason: "must not be nil"})
	}
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.closeHooks = append(s.closeHooks, hook)
}

// ServeHTTP handles WebSocket upgrade requests. Any other request gets a 400.
func (s *Server) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	if isWebsocketUpgradeRequest(req) {
		s.handleUpgrade(res, req)
		return
	}
	res.WriteHeader(http.StatusBadRequest)
	_, _ = res.Write([]byte("Bad Request. Expected websocket upgrade request"))
}

// GinHandler returns a gin handler that takes over WebSocket upgrade requests
// and passes everything else down the gin chain.
func (s *Server) GinHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isWebsocketUpgradeRequest(c.Request) {
			c.Abort()
			s.handleUpgrade(c.Writer, c.Request)
			return
		}
		c.Next()
	}
}

// HandleConnection drives the server with an already established transport.
// It registers the connection, runs the open hooks, processes messages until
// the transport closes, then evicts the connection and runs the close hooks.
// It blocks for the lifetime of the connection. Once Shutdown has started the
// transport is closed with StatusGoingAway and ErrServerClosed is returned.
func (s *Server) HandleConnection(info *ConnectionInfo, transport SocketConnection) error {
	conn, ok := s.admit(info, transport)
	if !ok {
		_ = transport.Close(StatusGoingAway, "server shutting down")
		return ErrServerClosed
	}
	defer s.wg.Done()
	defer close(conn.done)

	s.metrics.ConnectionOpened()
	s.metrics.SetConnectionCount(s.registry.Len())
	s.logger.Info("connection opened",
		zap.String("connectionId", conn.id),
		zap.String("remoteAddr", conn.remoteAddr))

	conn.busy.Store(true)
	s.runOpenHooks(conn.id)
	conn.busy.Store(false)

	status := s.readLoop(conn)
	if closedStatus, ok := conn.closedByServer(); ok {
		status = closedStatus
	}

	s.registry.Remove(conn.id)
	_ = conn.close(status, "")

	s.metrics.ConnectionClosed(status)
	s.metrics.SetConnectionCount(s.registry.Len())
	s.logger.Info("connection closed",
		zap.String("connectionId", conn.id),
		zap.Int("status", int(status)))

	s.runCloseHooks(conn.id, status)
	return nil
}

// admit registers the connection unless Shutdown has started.
func (s *Server) admit(info *ConnectionInfo, transport SocketConnection) (*Connection, bool) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.closing {
		return nil, false
	}
	s.wg.Add(1)
	return s.registry.Create(info, transport), true
}

func (s *Server) isClosing() bool {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	return s.closing
}

// Shutdown stops admitting connections, closes every connection and waits
// for their read loops to finish or for ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cancel()

	s.lifecycleMu.Lock()
	s.closing = true
	s.lifecycleMu.Unlock()

	if err := s.commands.CloseAll(ctx); err != nil && !errors.Is(err, ErrNoConnection) {
		return err
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleUpgrade(res http.ResponseWriter, req *http.Request) {
	if s.isClosing() {
		http.Error(res, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	proceed, err := s.gate.decide(req, s.opts.upgradeTimeout)
	if !proceed {
		s.metrics.UpgradeRejected()
		fields := []zap.Field{zap.String("remoteAddr", req.RemoteAddr)}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		s.logger.Info("upgrade rejected", fields...)
		rejectUpgrade(res)
		return
	}

	origins := s.opts.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	wsConn, err := websocket.Accept(res, req, &websocket.AcceptOptions{
		OriginPatterns: origins,
	})
	if err != nil {
		// Accept has already written an error response.
		s.logger.Warn("failed to accept websocket connection",
			zap.String("remoteAddr", req.RemoteAddr),
			zap.Error(err))
		return
	}
	if s.opts.readLimit > 0 {
		wsConn.SetReadLimit(s.opts.readLimit)
	}

	info := &ConnectionInfo{
		RemoteAddr: req.RemoteAddr,
		Headers:    req.Header,
	}
	if err := s.HandleConnection(info, NewWebSocketConnection(wsConn)); err != nil {
		s.logger.Info("connection refused during shutdown",
			zap.String("remoteAddr", req.RemoteAddr))
	}
}

// rejectUpgrade drops the raw connection without completing the handshake.
func rejectUpgrade(res http.ResponseWriter) {
	if hijacker, ok := res.(http.Hijacker); ok {
		if netConn, _, err := hijacker.Hijack(); err == nil {
			_ = netConn.Close()
			return
		}
	}
	http.Error(res, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

func (s *Server) readLoop(conn *Connection) Status {
	for {
		socketMessage, err := conn.transport.Read(s.ctx)
		if err != nil {
			status := statusFromError(err)
			if _, closedByServer := conn.closedByServer(); !closedByServer &&
				status != StatusNormalClosure && status != StatusGoingAway &&
				!errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				s.logger.Warn("error reading from connection",
					zap.String("connectionId", conn.id),
					zap.Error(err))
			}
			return status
		}
		conn.busy.Store(true)
		s.handleFrame(conn, socketMessage)
		conn.busy.Store(false)
	}
}

func (s *Server) handleFrame(conn *Connection, socketMessage *SocketMessage) {
	if socketMessage.Type != websocket.MessageText {
		s.handleMalformed(conn, &MalformedMessageError{
			ConnectionID: conn.id,
			Raw:          socketMessage.Data,
			Err:          fmt.Errorf("unsupported frame type %v", socketMessage.Type),
		})
		return
	}

	message, err := DecodeMessage(socketMessage.Data)
	if err != nil {
		var malformed *MalformedMessageError
		if errors.As(err, &malformed) {
			malformed.ConnectionID = conn.id
		}
		s.handleMalformed(conn, malformed)
		return
	}

	conn.recordIncoming(message)
	label := s.pipeline.metricLabel(message.Method)
	s.metrics.MessageReceived(label)

	ctx := s.ctx
	if s.opts.messageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.messageTimeout)
		defer cancel()
	}

	dropped, err := s.runPipeline(ctx, conn, message)
	if dropped {
		s.metrics.MessageDropped(label)
		s.logger.Debug("no handler matched message",
			zap.String("connectionId", conn.id),
			zap.String("method", message.Method))
	}
	if err != nil {
		s.metrics.HandlerError(label)
		fields := []zap.Field{
			zap.String("connectionId", conn.id),
			zap.String("method", message.Method),
			zap.Error(err),
		}
		var handlerErr *HandlerError
		if errors.As(err, &handlerErr) {
			fields = append(fields, zap.String("stack", handlerErr.Stack))
		}
		s.logger.Error("unhandled error while processing message", fields...)
	}
}

// runPipeline runs the pipeline for one message. A panic escaping the
// pipeline itself, for example from the error handler, is turned into an
// error so it only affects this message.
func (s *Server) runPipeline(ctx context.Context, conn *Connection, message *Message) (dropped bool, err error) {
	defer func() {
		if maybeErr := recover(); maybeErr != nil {
			err = &HandlerError{
				ConnectionID: conn.id,
				Method:       message.Method,
				Value:        maybeErr,
			}
		}
	}()
	return s.pipeline.run(ctx, s.commands, conn, conn.id, message)
}

func (s *Server) handleMalformed(conn *Connection, malformed *MalformedMessageError) {
	s.metrics.MalformedMessage()
	s.logger.Warn("dropped malformed message",
		zap.String("connectionId", conn.id),
		zap.Error(malformed))

	func() {
		defer func() {
			if maybeErr := recover(); maybeErr != nil {
				s.logger.Error("error handler panicked",
					zap.String("connectionId", conn.id),
					zap.Any("panic", maybeErr))
			}
		}()
		s.pipeline.handleError(malformed, conn.id, nil)
	}()

	if s.opts.malformedPolicy == MalformedClose {
		_ = conn.close(StatusInvalidFramePayloadData, "malformed message")
	}
}

func (s *Server) runOpenHooks(id string) {
	s.hooksMu.RLock()
	hooks := s.openHooks
	s.hooksMu.RUnlock()

	for _, hook := range hooks {
		s.runHook("open", id, func() { hook(id) })
	}
}

func (s *Server) runCloseHooks(id string, status Status) {
	s.hooksMu.RLock()
	hooks := s.closeHooks
	s.hooksMu.RUnlock()

	for _, hook := range hooks {
		s.runHook("close", id, func() { hook(id, status) })
	}
}

func (s *Server) runHook(kind, id string, fn func()) {
	defer func() {
		if maybeErr := recover(); maybeErr != nil {
			s.logger.Error("connection hook panicked",
				zap.String("hook", kind),
				zap.String("connectionId", id),
				zap.Any("panic", maybeErr))
		}
	}()
	fn()
}

func isWebsocketUpgradeRequest(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Upgrade"), "websocket")
}
