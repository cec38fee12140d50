package conduit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Commands is the API handlers use to talk to connections. It operates on
// the registry of the server it belongs to.
type Commands struct {
	registry     *Registry
	validator    Validator
	logger       *zap.Logger
	metrics      Metrics
	writeTimeout time.Duration
}

func newCommands(registry *Registry, validator Validator, logger *zap.Logger, metrics Metrics, writeTimeout time.Duration) *Commands {
	return &Commands{
		registry:     registry,
		validator:    validator,
		logger:       logger,
		metrics:      metrics,
		writeTimeout: writeTimeout,
	}
}

// Send encodes {method, data} and writes it to the connection registered
// under id. The message is appended to the connection's outgoing log once
// the write succeeds.
func (c *Commands) Send(id, method string, data any) error {
	if err := c.validator.ValidateID(id); err != nil {
		return err
	}
	frame, message, err := c.prepare(method, data)
	if err != nil {
		return err
	}

	conn, ok := c.registry.Get(id)
	if !ok {
		return ErrNoConnection
	}
	return c.write(conn, frame, message)
}

// BroadcastAll sends {method, data} to every registered connection in
// registry order. It fails with ErrNoConnection when nothing is registered.
// Failed writes do not stop the broadcast; their errors are combined.
func (c *Commands) BroadcastAll(method string, data any) error {
	return c.broadcast("", method, data)
}

// BroadcastExclude is like BroadcastAll but skips the connection registered
// under excludedID. It fails with ErrNoConnection when no other connection
// is registered.
func (c *Commands) BroadcastExclude(excludedID, method string, data any) error {
	if err := c.validator.ValidateID(excludedID); err != nil {
		return err
	}
	return c.broadcast(excludedID, method, data)
}

func (c *Commands) broadcast(excludedID, method string, data any) error {
	frame, message, err := c.prepare(method, data)
	if err != nil {
		return err
	}

	var targets []*Connection
	for _, conn := range c.registry.All() {
		if excludedID != "" && conn.id == excludedID {
			continue
		}
		targets = append(targets, conn)
	}
	if len(targets) == 0 {
		return ErrNoConnection
	}

	var errs error
	for _, conn := range targets {
		if err := c.write(conn, frame, message); err != nil {
			c.logger.Warn("broadcast write failed",
				zap.String("connectionId", conn.id),
				zap.String("method", method),
				zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Close closes the connection registered under id. It waits until the
// connection has been removed from the registry and its close hooks have
// run, or until ctx ends. When the connection is busy running a hook or
// handler, which includes Close being called from one of them, Close
// returns as soon as the transport is closed and eviction follows once that
// handler returns.
func (c *Commands) Close(ctx context.Context, id string) error {
	if err := c.validator.ValidateID(id); err != nil {
		return err
	}
	conn, ok := c.registry.Get(id)
	if !ok {
		return ErrNoConnection
	}

	c.requestClose(conn)
	if conn.busy.Load() {
		return nil
	}

	select {
	case <-conn.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseAll asks every registered connection to close and returns once each
// transport close has finished, or ctx ends. Eviction and close hooks follow
// on each connection's own goroutine; Server.Shutdown waits for those. It
// fails with ErrNoConnection when nothing is registered.
func (c *Commands) CloseAll(ctx context.Context) error {
	conns := c.registry.All()
	if len(conns) == 0 {
		return ErrNoConnection
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *Connection) {
			defer wg.Done()
			c.requestClose(conn)
		}(conn)
	}

	requested := make(chan struct{})
	go func() {
		wg.Wait()
		close(requested)
	}()

	select {
	case <-requested:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Commands) requestClose(conn *Connection) {
	// The transport reports an error when the peer vanished without a close
	// handshake. The connection is gone either way, so only log it.
	if err := conn.close(StatusNormalClosure, ""); err != nil {
		c.logger.Debug("transport close returned an error",
			zap.String("connectionId", conn.id),
			zap.Error(err))
	}
}

// Snapshot returns a copy of every live connection's state in registry
// order. Later activity on the connections does not affect the result.
func (c *Commands) Snapshot() []ConnectionSnapshot {
	conns := c.registry.All()
	snapshots := make([]ConnectionSnapshot, 0, len(conns))
	for _, conn := range conns {
		snapshots = append(snapshots, conn.snapshot())
	}
	return snapshots
}

// Exists reports whether id is registered. An empty id asks whether any
// connection is registered.
func (c *Commands) Exists(id string) bool {
	return c.registry.Exists(id)
}

func (c *Commands) prepare(method string, data any) ([]byte, *Message, error) {
	if err := c.validator.ValidateMethod(method); err != nil {
		return nil, nil, err
	}
	if err := c.validator.ValidateData(data); err != nil {
		return nil, nil, err
	}
	return EncodeMessage(method, data)
}

func (c *Commands) write(conn *Connection, frame []byte, message *Message) error {
	ctx := context.Background()
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	if err := conn.write(ctx, frame, message); err != nil {
		return err
	}
	c.metrics.MessageSent(message.Method)
	return nil
}
