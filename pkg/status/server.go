package status

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"proxyrank/internal/database"
	"proxyrank/internal/logger"
	"proxyrank/pkg/manager"
)

// Config configures the status server
type Config struct {
	ListenAddr string
	// KeyPattern scopes the store statistics in /stats
	KeyPattern string
}

// Server exposes pool health, statistics and metrics over HTTP
type Server struct {
	echo   *echo.Echo
	source manager.ProxySource
	store  database.Store
	config Config
	logger *logger.Logger
}

// NewServer wires the routes. store may be nil, in which case /stats omits store totals.
func NewServer(source manager.ProxySource, store database.Store, gatherer prometheus.Gatherer, config Config) *Server {
	if config.KeyPattern == "" {
		config.KeyPattern = "*://*"
	}

	s := &Server{
		echo:   echo.New(),
		source: source,
		store:  store,
		config: config,
		logger: logger.New("status"),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("Request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/stats", s.handleStats)
	if gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return s
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving on the configured address until Stop is called
func (s *Server) Start() error {
	s.logger.Info("Status server listening", "addr", s.config.ListenAddr)
	if err := s.echo.Start(s.config.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// GET /healthz
func (s *Server) handleHealth(c echo.Context) error {
	stats := s.source.Stats()
	if stats.Ranked == 0 {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "no ranked proxies",
			"ranked": 0,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"ranked": stats.Ranked,
	})
}

type statsResponse struct {
	Pool       manager.Stats        `json:"pool"`
	Store      *database.ProxyStats `json:"store,omitempty"`
	StoreError string               `json:"store_error,omitempty"`
}

// GET /stats
func (s *Server) handleStats(c echo.Context) error {
	resp := statsResponse{Pool: s.source.Stats()}

	if s.store != nil {
		storeStats, err := database.GetProxyStats(c.Request().Context(), s.store, s.config.KeyPattern)
		if err != nil {
			s.logger.Warn("Failed to read store stats", "error", err)
			resp.StoreError = err.Error()
		} else {
			resp.Store = &storeStats
		}
	}

	return c.JSON(http.StatusOK, resp)
}
