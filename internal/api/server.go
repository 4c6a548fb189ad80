// Package api serves the operations HTTP endpoint: health, metrics and
// read-only views of the alerting core plus a few operator actions.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gudangguard/sentinel/internal/conf"
	"github.com/gudangguard/sentinel/internal/errors"
	"github.com/gudangguard/sentinel/internal/logger"
	"github.com/gudangguard/sentinel/internal/observability/metrics"
)

const shutdownTimeout = 10 * time.Second

// Server owns the echo instance.
type Server struct {
	echo     *echo.Echo
	listen   string
	log      logger.Logger
	serveErr chan error
}

// NewServer builds the router for controller. Metrics are exposed on
// /metrics when m is not nil.
func NewServer(settings conf.HTTPSettings, controller *Controller, m *metrics.Metrics, log logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		listen:   settings.Listen,
		log:      log.Module("api"),
		serveErr: make(chan error, 1),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug("request",
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency))
			return nil
		},
	}))

	if reg := m.Registry(); reg != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	controller.Register(e)
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens in the background. Listen failures are reported by Shutdown.
func (s *Server) Start() {
	go func() {
		s.log.Info("http server listening", logger.String("listen", s.listen))
		if err := s.echo.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", logger.Error(err))
			s.serveErr <- err
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}
	select {
	case err := <-s.serveErr:
		return err
	default:
		return nil
	}
}
