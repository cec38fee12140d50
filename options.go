package conduit

import (
	"time"

	"go.uber.org/zap"
)

// MalformedPolicy decides what happens to a connection that sends a frame
// which cannot be decoded into a Message.
type MalformedPolicy int

const (
	// MalformedDrop drops the frame and keeps the connection open.
	MalformedDrop MalformedPolicy = iota
	// MalformedClose drops the frame and closes the connection with
	// StatusInvalidFramePayloadData.
	MalformedClose
)

// ParseMalformedPolicy maps "drop" and "close" to their policies.
func ParseMalformedPolicy(s string) (MalformedPolicy, bool) {
	switch s {
	case "", "drop":
		return MalformedDrop, true
	case "close":
		return MalformedClose, true
	}
	return MalformedDrop, false
}

type options struct {
	logger          *zap.Logger
	metrics         Metrics
	validator       Validator
	idGenerator     IDGenerator
	origins         []string
	upgradeTimeout  time.Duration
	messageTimeout  time.Duration
	writeTimeout    time.Duration
	readLimit       int64
	malformedPolicy MalformedPolicy
}

func defaultOptions() *options {
	return &options{
		logger:    zap.NewNop(),
		metrics:   NoopMetrics{},
		validator: NewValidator(),
	}
}

// Option configures a Server.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(o *options) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithValidator replaces the argument validator used by the command API.
func WithValidator(validator Validator) Option {
	return func(o *options) {
		if validator != nil {
			o.validator = validator
		}
	}
}

// WithIDGenerator replaces the connection id generator.
func WithIDGenerator(generator IDGenerator) Option {
	return func(o *options) {
		o.idGenerator = generator
	}
}

// WithOrigins sets the origin patterns accepted during the handshake. The
// default accepts every origin. Patterns support wildcards, for example
// "https://*.example.com".
func WithOrigins(origins ...string) Option {
	return func(o *options) {
		o.origins = origins
	}
}

// WithUpgradeTimeout bounds how long the upgrade gate may take to decide.
// Zero waits until the request is cancelled.
func WithUpgradeTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.upgradeTimeout = timeout
	}
}

// WithMessageTimeout sets the deadline carried by Context.Context for each
// message. Zero means no deadline.
func WithMessageTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.messageTimeout = timeout
	}
}

// WithWriteTimeout bounds each frame write. Zero means no bound.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// WithReadLimit sets the maximum size in bytes of an inbound frame. Zero
// keeps the transport default.
func WithReadLimit(limit int64) Option {
	return func(o *options) {
		o.readLimit = limit
	}
}

// WithMalformedPolicy sets how malformed inbound frames are handled.
func WithMalformedPolicy(policy MalformedPolicy) Option {
	return func(o *options) {
		o.malformedPolicy = policy
	}
}
