package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/weatherproxy/internal/profile"
	"github.com/hrygo/weatherproxy/server/internal/observability"
	"github.com/hrygo/weatherproxy/server/middleware"
	"github.com/hrygo/weatherproxy/server/service/weather"
)

// maxBatchRegions bounds the regions accepted by one batch alerts request.
const maxBatchRegions = 20

// APIV1Service exposes the weather tool operations over plain HTTP.
// Tool output is returned as text/plain exactly as the tools render it.
type APIV1Service struct {
	Profile *profile.Profile
	Weather *weather.Service
	Metrics *observability.Metrics

	clientLimiter *middleware.RateLimiter
}

func NewAPIV1Service(profile *profile.Profile, weatherService *weather.Service, metrics *observability.Metrics) *APIV1Service {
	return &APIV1Service{
		Profile:       profile,
		Weather:       weatherService,
		Metrics:       metrics,
		clientLimiter: middleware.NewRateLimiter(profile.ClientRPS, profile.ClientBurst),
	}
}

// RegisterRoutes registers the API routes with the given Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	echoServer.GET("/healthz", s.HealthCheck)
	echoServer.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))

	api := echoServer.Group("/api/v1", s.clientLimiter.Middleware())
	api.GET("/alerts", s.BatchAlerts)
	api.GET("/alerts/:region", s.GetAlerts)
	api.GET("/forecast", s.GetForecast)
	api.GET("/location-forecast", s.GetLocationForecast)
	api.GET("/metrics/summary", s.GetMetricsSummary)
	api.GET("/metrics/overview", s.GetMetricsOverview)
}

// GetAlerts returns the active alerts for one region.
// GET /api/v1/alerts/:region?severity=
func (s *APIV1Service) GetAlerts(c echo.Context) error {
	out := s.Weather.Alerts(c.Request().Context(), c.Param("region"), c.QueryParam("severity"))
	return c.String(http.StatusOK, out)
}

// BatchAlerts returns the alerts of several regions, one section per region.
// GET /api/v1/alerts?regions=CA,TX&severity=
func (s *APIV1Service) BatchAlerts(c echo.Context) error {
	var regions []string
	for _, r := range strings.Split(c.QueryParam("regions"), ",") {
		if r = strings.TrimSpace(r); r != "" {
			regions = append(regions, r)
		}
	}
	if len(regions) == 0 {
		return c.String(http.StatusBadRequest, "Error: At least one region must be provided")
	}
	if len(regions) > maxBatchRegions {
		return c.String(http.StatusBadRequest, "Error: Too many regions in one request")
	}

	results := s.Weather.BatchAlerts(c.Request().Context(), regions, c.QueryParam("severity"))

	var b strings.Builder
	for i, region := range regions {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## " + strings.ToUpper(region) + "\n")
		b.WriteString(results[i])
	}
	return c.String(http.StatusOK, b.String())
}

// GetForecast returns the forecast for a coordinate pair.
// GET /api/v1/forecast?lat=&lon=
func (s *APIV1Service) GetForecast(c echo.Context) error {
	out := s.Weather.ForecastFromStrings(c.Request().Context(), c.QueryParam("lat"), c.QueryParam("lon"))
	return c.String(http.StatusOK, out)
}

// GetLocationForecast returns the forecast for a city.
// GET /api/v1/location-forecast?city=&state=
func (s *APIV1Service) GetLocationForecast(c echo.Context) error {
	out := s.Weather.LocationForecast(c.Request().Context(), c.QueryParam("city"), c.QueryParam("state"))
	return c.String(http.StatusOK, out)
}

// HealthCheck probes the upstream API.
// GET /healthz
func (s *APIV1Service) HealthCheck(c echo.Context) error {
	return c.String(http.StatusOK, s.Weather.HealthCheck(c.Request().Context()))
}

// GetMetricsSummary returns the collector summary.
// GET /api/v1/metrics/summary
func (s *APIV1Service) GetMetricsSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Metrics.Summary())
}
