// Package weather implements the weather tool operations on top of the request pipeline.
//
// Operations never return errors. Typed failures are rendered as "Error: <message>"
// and anything else as a per-operation sentence, so callers can hand the text
// straight to the user.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/weatherproxy/internal/profile"
	apperrors "github.com/hrygo/weatherproxy/server/internal/errors"
	"github.com/hrygo/weatherproxy/server/internal/observability"
)

const (
	OpAlerts           = "get_alerts"
	OpForecast         = "get_forecast"
	OpLocationForecast = "get_location_forecast"
	OpHealthCheck      = "health_check"

	alertSeparatorWidth  = 50
	periodSeparatorWidth = 40

	// DefaultBatchConcurrency bounds the alert fetches of one BatchAlerts call.
	DefaultBatchConcurrency = 4

	healthProbeRegion = "CA"
)

// Client is the subset of the pipeline used by the service.
type Client interface {
	Execute(ctx context.Context, url, cacheKey string) (json.RawMessage, error)
	Probe(ctx context.Context, url string) (int, time.Duration, error)
}

// CacheSizer reports the number of cache entries.
type CacheSizer interface {
	Len() int
}

// UsageReporter reports rate-limiter usage.
type UsageReporter interface {
	Usage() int
	Limit() int
}

// Config holds the service settings.
type Config struct {
	APIBase            string
	MaxForecastPeriods int
	BatchConcurrency   int
}

// ConfigFromProfile extracts the service settings from a profile.
func ConfigFromProfile(p *profile.Profile) Config {
	return Config{
		APIBase:            p.APIBase,
		MaxForecastPeriods: p.MaxForecastPeriods,
		BatchConcurrency:   DefaultBatchConcurrency,
	}
}

// Deps are the collaborators of a Service. Cache, Limiter, Metrics and Logger are optional.
type Deps struct {
	Client  Client
	Cache   CacheSizer
	Limiter UsageReporter
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Service exposes the weather tool operations.
type Service struct {
	cfg     Config
	client  Client
	cache   CacheSizer
	limiter UsageReporter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService creates a service.
func NewService(cfg Config, deps Deps) *Service {
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		client:  deps.Client,
		cache:   deps.Cache,
		limiter: deps.Limiter,
		metrics: deps.Metrics,
		logger:  logger,
	}
}

// Alerts returns the active alerts for a region, optionally filtered by severity.
func (s *Service) Alerts(ctx context.Context, region, severity string) string {
	return s.run(ctx, OpAlerts, "An unexpected error occurred while fetching weather alerts.",
		func(ctx context.Context) (string, error) {
			return s.alerts(ctx, region, severity)
		}, slog.String("region", region))
}

func (s *Service) alerts(ctx context.Context, region, severity string) (string, error) {
	code, err := ValidateRegionCode(region)
	if err != nil {
		return "", err
	}

	filterKey := severity
	if filterKey == "" {
		filterKey = "all"
	}
	url := fmt.Sprintf("%s/alerts/active/area/%s", s.cfg.APIBase, code)
	cacheKey := fmt.Sprintf("alerts_%s_%s", code, filterKey)

	raw, err := s.client.Execute(ctx, url, cacheKey)
	if err != nil {
		return "", err
	}
	payload, err := decode[alertsPayload](raw, "alerts")
	if err != nil {
		return "", err
	}

	if payload.Features == nil {
		return "No alert data available for this state.", nil
	}
	if len(*payload.Features) == 0 {
		return fmt.Sprintf("No active alerts for %s.", code), nil
	}

	alerts := FormatAlerts(*payload.Features, severity)
	if len(alerts) == 0 {
		filterMsg := ""
		if severity != "" {
			filterMsg = fmt.Sprintf(" with severity '%s'", severity)
		}
		return fmt.Sprintf("No active alerts found for %s%s.", code, filterMsg), nil
	}

	parts := make([]string, len(alerts))
	for i, a := range alerts {
		parts[i] = a.String()
	}
	return strings.Join(parts, "\n"+strings.Repeat("=", alertSeparatorWidth)+"\n"), nil
}

// BatchAlerts runs Alerts for every region concurrently. Results keep the input order.
func (s *Service) BatchAlerts(ctx context.Context, regions []string, severity string) []string {
	results := make([]string, len(regions))

	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, region := range regions {
		i, region := i, region
		g.Go(func() error {
			results[i] = s.Alerts(ctx, region, severity)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Forecast returns the forecast for a coordinate pair.
func (s *Service) Forecast(ctx context.Context, lat, lon float64) string {
	return s.run(ctx, OpForecast, "An unexpected error occurred while fetching the weather forecast.",
		func(ctx context.Context) (string, error) {
			return s.forecast(ctx, lat, lon)
		}, slog.Float64("latitude", lat), slog.Float64("longitude", lon))
}

// ForecastFromStrings parses textual coordinates and returns the forecast.
func (s *Service) ForecastFromStrings(ctx context.Context, lat, lon string) string {
	return s.run(ctx, OpForecast, "An unexpected error occurred while fetching the weather forecast.",
		func(ctx context.Context) (string, error) {
			latitude, longitude, err := ParseCoordinates(lat, lon)
			if err != nil {
				return "", err
			}
			return s.forecast(ctx, latitude, longitude)
		}, slog.String("latitude", lat), slog.String("longitude", lon))
}

func (s *Service) forecast(ctx context.Context, lat, lon float64) (string, error) {
	lat, lon, err := ValidateCoordinates(lat, lon)
	if err != nil {
		return "", err
	}
	latStr, lonStr := formatCoordinate(lat), formatCoordinate(lon)

	pointsURL := fmt.Sprintf("%s/points/%s,%s", s.cfg.APIBase, latStr, lonStr)
	raw, err := s.client.Execute(ctx, pointsURL, fmt.Sprintf("points_%s_%s", latStr, lonStr))
	if err != nil {
		return "", err
	}
	points, err := decode[pointsPayload](raw, "points")
	if err != nil {
		return "", err
	}
	if points.Properties == nil {
		return "Unable to get forecast data for this location.", nil
	}
	if points.Properties.Forecast == "" {
		return "Forecast not available for this location.", nil
	}

	raw, err = s.client.Execute(ctx, points.Properties.Forecast, fmt.Sprintf("forecast_%s_%s", latStr, lonStr))
	if err != nil {
		return "", err
	}
	forecast, err := decode[forecastPayload](raw, "forecast")
	if err != nil {
		return "", err
	}
	if forecast.Properties == nil {
		return "Unable to get detailed forecast.", nil
	}
	if len(forecast.Properties.Periods) == 0 {
		return "No forecast periods available.", nil
	}

	periods := FormatForecastPeriods(forecast.Properties.Periods, s.cfg.MaxForecastPeriods)
	parts := make([]string, len(periods))
	for i, p := range periods {
		parts[i] = p.String()
	}

	loc := points.Properties.RelativeLocation.Properties
	header := fmt.Sprintf("🌤️  Weather Forecast for %s, %s (%s, %s)",
		stringOr(loc.City, "Unknown"), stringOr(loc.State, "Unknown"), latStr, lonStr)

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", utf8.RuneCountInString(header)))
	b.WriteString("\n\n")
	b.WriteString(strings.Join(parts, "\n"+strings.Repeat("─", periodSeparatorWidth)+"\n"))
	return b.String(), nil
}

// LocationForecast would resolve a city to coordinates. Geocoding is not
// available, so it only points the caller at Forecast.
func (s *Service) LocationForecast(ctx context.Context, city, region string) string {
	return s.run(ctx, OpLocationForecast, "An unexpected error occurred.",
		func(context.Context) (string, error) {
			city, region := strings.TrimSpace(city), strings.TrimSpace(region)
			if city == "" || region == "" {
				return "", apperrors.Validation("Both city and state must be provided")
			}
			return fmt.Sprintf("Geocoding not fully implemented. Please use get_forecast with coordinates for %s, %s.", city, region), nil
		})
}

// HealthCheck probes the API once, outside the limiter and the cache, and
// reports connectivity along with local cache, limiter and service state.
func (s *Service) HealthCheck(ctx context.Context) string {
	reqCtx := observability.NewRequestContext(s.logger, OpHealthCheck)
	ctx = observability.WithRequestContext(ctx, reqCtx)

	status, latency, err := s.client.Probe(ctx, fmt.Sprintf("%s/alerts/active/area/%s", s.cfg.APIBase, healthProbeRegion))
	if err != nil {
		reqCtx.Error("health check failed", err)
		s.record(reqCtx, 0, err)
		return "❌ Unhealthy: " + err.Error()
	}

	statusText := "✅ Healthy"
	if status != 200 {
		statusText = fmt.Sprintf("⚠️  Warning (HTTP %d)", status)
	}

	var b strings.Builder
	b.WriteString("🏥 Weather Service Health Check\n")
	fmt.Fprintf(&b, "Status: %s\n", statusText)
	fmt.Fprintf(&b, "Response Time: %.2fs\n", latency.Seconds())
	if s.cache != nil {
		fmt.Fprintf(&b, "Cache Entries: %d\n", s.cache.Len())
	}
	if s.limiter != nil {
		fmt.Fprintf(&b, "Rate Limit Usage: %d/%d per minute\n", s.limiter.Usage(), s.limiter.Limit())
	}
	fmt.Fprintf(&b, "API Base: %s", s.cfg.APIBase)
	if s.metrics != nil {
		health := s.metrics.Health()
		fmt.Fprintf(&b, "\nService Status: %s (%s)", health.Status, health.Details)
	}

	reqCtx.Info("health check complete", slog.Int(observability.LogFieldStatus, status))
	s.record(reqCtx, status, nil)
	return b.String()
}

// run wraps one tool invocation: request context, metrics and error rendering.
func (s *Service) run(ctx context.Context, op, unexpected string, fn func(context.Context) (string, error), attrs ...slog.Attr) string {
	reqCtx := observability.NewRequestContext(s.logger, op)
	ctx = observability.WithRequestContext(ctx, reqCtx)

	out, err := fn(ctx)
	if err == nil {
		reqCtx.Debug("tool completed", append(attrs, slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))...)
		s.record(reqCtx, 200, nil)
		return out
	}

	s.record(reqCtx, statusForError(err), err)
	if msg, ok := apperrors.UserMessage(err); ok {
		code := apperrors.GetCodeFromError(err, apperrors.ErrCodeGeneric)
		reqCtx.Error("tool failed", err, append(attrs, slog.String(observability.LogFieldErrorCode, string(code)))...)
		return "Error: " + msg
	}
	reqCtx.Error("tool failed unexpectedly", err, attrs...)
	return unexpected
}

func (s *Service) record(reqCtx *observability.RequestContext, status int, err error) {
	rec := observability.RequestRecord{
		Endpoint:     reqCtx.Operation,
		StatusCode:   status,
		ResponseTime: reqCtx.Duration(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	s.metrics.RecordRequest(rec)
}

// statusForError maps a failure to the HTTP-like status used by the metrics and the HTTP surface.
func statusForError(err error) int {
	switch apperrors.GetCodeFromError(err, apperrors.ErrCodeGeneric) {
	case apperrors.ErrCodeValidation:
		return 400
	case apperrors.ErrCodeNotFound:
		return 404
	case apperrors.ErrCodeRateLimitExceeded:
		return 429
	case apperrors.ErrCodeAPIUnavailable:
		return 503
	default:
		return 500
	}
}
