package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/RobertWHurst/conduit"
	"github.com/RobertWHurst/conduit/internal/config"
	"github.com/RobertWHurst/conduit/internal/logger"
	"github.com/RobertWHurst/conduit/metrics"
	"github.com/RobertWHurst/conduit/middleware/logging"
	"github.com/RobertWHurst/conduit/middleware/tracing"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the demo server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	engine, server := newEngine(cfg, log, m)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: engine,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("path", cfg.Server.Path))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by http.Server, so the
	// conduit server is drained separately.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("failed to close connections", zap.Error(err))
	}
	return httpServer.Shutdown(shutdownCtx)
}

// newEngine builds the gin engine hosting the socket endpoint, the
// connection listing and, when m is not nil, the metrics endpoint.
func newEngine(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) (*gin.Engine, *conduit.Server) {
	opts := append(cfg.Server.ServerOptions(), conduit.WithLogger(log))
	if m != nil {
		opts = append(opts, conduit.WithMetrics(m))
	}
	server := conduit.NewServer(opts...)

	server.Use(tracing.Middleware())
	server.Use(logging.Middleware(log))
	registerDemo(server, log)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	if m != nil {
		engine.Use(m.Middleware())
		engine.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}
	engine.GET(cfg.Server.Path, server.GinHandler(), func(c *gin.Context) {
		c.String(http.StatusBadRequest, "expected websocket upgrade request")
	})
	engine.GET("/connections", func(c *gin.Context) {
		c.JSON(http.StatusOK, server.Commands().Snapshot())
	})

	return engine, server
}
