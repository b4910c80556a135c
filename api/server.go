// Package api serves the stored leaderboard, single repositories and
// on-demand commit activity over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"githubrank/logger"
	"githubrank/metrics"
	"githubrank/models"
)

const shutdownTimeout = 10 * time.Second

// Backend is what the handlers read from
type Backend interface {
	Leaderboard(ctx context.Context, q models.LeaderboardQuery) ([]models.Repository, error)
	Repository(ctx context.Context, fullName string) (*models.Repository, error)
	GetActivity(ctx context.Context, owner, name, since, until string) ([]models.ActivityDay, error)
	Ping(ctx context.Context) error
}

// Options configures the HTTP server
type Options struct {
	Port int
	// TopN is the default and the upper bound of the leaderboard limit
	TopN  int
	Debug bool
}

// Server is the HTTP query surface
type Server struct {
	e       *echo.Echo
	backend Backend
	opts    Options
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewServer builds the echo instance with middleware and routes.
// gatherer backs /metrics and may be nil to leave the route out.
func NewServer(backend Backend, opts Options, gatherer prometheus.Gatherer, m *metrics.Metrics, log *zap.Logger) *Server {
	s := &Server{
		e:       echo.New(),
		backend: backend,
		opts:    opts,
		metrics: m,
		log:     logger.OrNop(log),
	}

	if !opts.Debug {
		s.e.HideBanner = true
		s.e.HidePort = true
	}

	s.configureMiddleware()
	s.configureRoutes(gatherer)
	return s
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.e
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", s.opts.Port),
		Handler:           s.e,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting API server", zap.String("addr", server.Addr))
		if err := s.e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.e.Shutdown(shutdownCtx)
}

func (s *Server) configureMiddleware() {
	l := s.log

	// Request ID must come first
	s.e.Use(middleware.RequestID())

	s.e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1 << 12, // 4 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			l.Error("Recovered from panic",
				zap.Error(err),
				zap.ByteString("stack", stack),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		},
	}))

	s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			l.Info("Request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
				zap.String("request_id", v.RequestID),
			)
			s.metrics.HTTPRequest(c.Path(), v.Method, v.Status, v.Latency)
			return nil
		},
		LogLatency:   true,
		LogRemoteIP:  true,
		LogMethod:    true,
		LogURI:       true,
		LogRequestID: true,
		LogStatus:    true,
	}))
}

func (s *Server) configureRoutes(gatherer prometheus.Gatherer) {
	l := s.log

	s.e.GET("/healthz", wrap(s.health, l))
	s.e.GET("/api/repos/top100", wrap(s.leaderboard, l))
	s.e.GET("/api/repos/:owner/:repo", wrap(s.repository, l))
	s.e.GET("/api/repos/:owner/:repo/activity", wrap(s.getActivity, l))

	if gatherer != nil {
		s.e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
