package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/weatherproxy/internal/profile"
	"github.com/hrygo/weatherproxy/server/internal/observability"
	"github.com/hrygo/weatherproxy/server/middleware"
	"github.com/hrygo/weatherproxy/server/pipeline"
	apiv1 "github.com/hrygo/weatherproxy/server/router/api/v1"
	"github.com/hrygo/weatherproxy/server/service/weather"
	"github.com/hrygo/weatherproxy/store/cache"
)

// Server owns the process-wide components: one cache, one rate limiter,
// one pipeline with its outbound client, and the optional HTTP surface.
type Server struct {
	Profile *profile.Profile

	Cache    *cache.Store
	Limiter  *middleware.SlidingWindow
	Metrics  *observability.Metrics
	Pipeline *pipeline.Pipeline
	Weather  *weather.Service

	echoServer *echo.Echo
	listener   net.Listener

	runnerCancelFuncs []context.CancelFunc
	shutdownOnce      sync.Once
}

// NewServer wires all components for profile. Nothing is started.
func NewServer(_ context.Context, profile *profile.Profile) (*Server, error) {
	if err := profile.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid profile")
	}

	s := &Server{
		Profile: profile,
		Cache:   cache.New(),
		Limiter: middleware.NewSlidingWindow(profile.RateLimitPerMinute),
		Metrics: observability.NewMetrics(observability.DefaultNamespace, 1000),
	}
	s.Pipeline = pipeline.New(pipeline.ConfigFromProfile(profile), s.Limiter, s.Cache, pipeline.WithMetrics(s.Metrics))
	s.Weather = weather.NewService(weather.ConfigFromProfile(profile), weather.Deps{
		Client:  s.Pipeline,
		Cache:   s.Cache,
		Limiter: s.Limiter,
		Metrics: s.Metrics,
	})

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomiddleware.Recover())
	s.echoServer = echoServer

	apiv1.NewAPIV1Service(profile, s.Weather, s.Metrics).RegisterRoutes(echoServer)

	return s, nil
}

// Start serves the HTTP surface and starts the background runners.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", address)
	}
	s.listener = listener
	s.echoServer.Listener = listener

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", slog.String("error", err.Error()))
		}
	}()
	s.StartBackgroundRunners(ctx)

	slog.Info("weather proxy listening", slog.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// StartBackgroundRunners starts the periodic metrics summary logger.
func (s *Server) StartBackgroundRunners(ctx context.Context) {
	if s.Profile.MetricsLogInterval <= 0 {
		return
	}
	runnerCtx, cancel := context.WithCancel(ctx)
	s.runnerCancelFuncs = append(s.runnerCancelFuncs, cancel)

	go func() {
		ticker := time.NewTicker(s.Profile.MetricsLogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runnerCtx.Done():
				return
			case <-ticker.C:
				s.Metrics.LogSummary(slog.Default())
			}
		}
	}()
}

// Shutdown stops the HTTP surface and closes the outbound client.
// Only the first call has any effect.
func (s *Server) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		slog.Info("server shutting down")

		for _, cancelFunc := range s.runnerCancelFuncs {
			cancelFunc()
		}

		if s.listener != nil {
			if err := s.echoServer.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown server", slog.String("error", err.Error()))
			}
		}

		if err := s.Pipeline.Close(); err != nil {
			slog.Error("failed to close weather client", slog.String("error", err.Error()))
		}

		s.Metrics.LogSummary(slog.Default())
		slog.Info("weather proxy stopped properly")
	})
}
