package tracing

import (
	"github.com/RobertWHurst/conduit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "github.com/RobertWHurst/conduit"

type config struct {
	tracerName        string
	provider          trace.TracerProvider
	spanNameFormatter func(ctx *conduit.Context) string
}

// Option configures the tracing middleware.
type Option func(*config)

// WithTracerProvider sets the provider spans are created from. The global
// provider is used otherwise.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *config) {
		c.provider = provider
	}
}

// WithTracerName overrides the instrumentation name of the tracer.
func WithTracerName(name string) Option {
	return func(c *config) {
		c.tracerName = name
	}
}

// WithSpanNameFormatter overrides how span names are derived from messages.
func WithSpanNameFormatter(formatter func(ctx *conduit.Context) string) Option {
	return func(c *config) {
		c.spanNameFormatter = formatter
	}
}

// Middleware starts a server span for each message and makes it the parent
// of anything the rest of the chain traces through ctx.Context(). Errors
// returned by the chain are recorded on the span.
//
//	server.Use(tracing.Middleware())
func Middleware(opts ...Option) conduit.HandlerFunc {
	cfg := &config{
		tracerName: defaultTracerName,
		spanNameFormatter: func(ctx *conduit.Context) string {
			return "message " + ctx.Method()
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(ctx *conduit.Context) error {
		// Resolved per message so a provider installed after setup is picked up.
		provider := cfg.provider
		if provider == nil {
			provider = otel.GetTracerProvider()
		}
		tracer := provider.Tracer(cfg.tracerName)

		spanCtx, span := tracer.Start(ctx.Context(), cfg.spanNameFormatter(ctx),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("conduit.connection_id", ctx.ConnectionID()),
				attribute.String("conduit.method", ctx.Method()),
			),
		)
		defer span.End()

		ctx.SetContext(spanCtx)

		err := ctx.Next()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}
