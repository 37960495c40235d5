package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/net/netutil"

	"github.com/hotspot-detector/geodetect/internal/api/handlers"
	mw "github.com/hotspot-detector/geodetect/internal/api/middleware"
	"github.com/hotspot-detector/geodetect/internal/buildinfo"
	"github.com/hotspot-detector/geodetect/internal/logger"
	"github.com/hotspot-detector/geodetect/internal/observability"
)

// Server is the geodetect HTTP server.
type Server struct {
	echo     *echo.Echo
	config   *Config
	handlers *handlers.Handlers

	metrics *observability.Metrics
	build   *buildinfo.Context
	log     logger.Logger
	slogger *slog.Logger

	listenMu sync.Mutex
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics enables /metrics and request metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithBuildInfo sets the build metadata reported on /status.
func WithBuildInfo(b *buildinfo.Context) ServerOption {
	return func(s *Server) { s.build = b }
}

// WithLogger sets the structured logger for the server.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// WithAccessLog sets the slog logger used for the access log.
func WithAccessLog(l *slog.Logger) ServerOption {
	return func(s *Server) { s.slogger = l }
}

// New creates the HTTP server around the model, the analysis pipeline and the
// upload store.
func New(config *Config, model handlers.ModelStatus, analyzer handlers.Analyzer,
	assets handlers.AssetStore, opts ...ServerOption) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{config: config}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}
	if s.slogger == nil {
		s.slogger = logger.Global().Slog("http")
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.StdLogger = slog.NewLogLogger(s.slogger.Handler(), slog.LevelWarn)

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	hopts := []handlers.Option{handlers.WithBuildInfo(s.build), handlers.WithLogger(s.log)}
	if s.metrics != nil {
		hopts = append(hopts, handlers.WithMetrics(s.metrics.HTTP))
	}
	s.handlers = handlers.New(model, analyzer, assets, hopts...)

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Int64("body_limit", config.BodyLimit()),
		logger.Float64("rate_limit", config.RateLimit),
		logger.Int("max_connections", config.MaxConnections))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestID())
	s.echo.Use(mw.NewRequestLogger(s.slogger))

	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
	s.echo.Use(mw.NewCORS(securityConfig))

	if s.config.RateLimit > 0 {
		s.echo.Use(mw.NewRateLimiter(s.config.RateLimit, 0))
	}

	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit()))
}

func (s *Server) setupRoutes() {
	var metricsHandler http.Handler
	if s.metrics != nil {
		metricsHandler = s.metrics.Handler()
	}
	s.handlers.Register(s.echo, metricsHandler)
}

// Listen binds the listening socket. It is called by Run when needed and is
// exposed so callers can learn the bound address first.
func (s *Server) Listen() error {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	if s.echo.Listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address(), err)
	}
	if s.config.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxConnections)
	}
	s.echo.Listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.echo.Listener == nil {
		return nil
	}
	return s.echo.Listener.Addr()
}

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.log.Info("HTTP server starting", logger.String("address", s.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(s.config.Address())
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutdown signal received, draining requests",
		logger.Duration("timeout", s.config.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.log.Error("Error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Handlers returns the endpoint handlers.
func (s *Server) Handlers() *handlers.Handlers {
	return s.handlers
}
