package v1

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// MetricsOverviewResponse represents the overview response of service metrics
type MetricsOverviewResponse struct {
	Status        string  `json:"status"`
	TotalRequests int64   `json:"total_requests"`
	SuccessRate   float64 `json:"success_rate"`
	AvgLatencyMs  int64   `json:"avg_latency_ms"`
	ErrorCount    int     `json:"error_count"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
	RateLimitHits int64   `json:"rate_limit_hits"`
	TimeRange     string  `json:"time_range"`
}

// GetMetricsOverview returns the service metrics overview.
// Only errors newer than the range are counted; counters cover the process lifetime.
// GET /api/v1/metrics/overview
func (s *APIV1Service) GetMetricsOverview(c echo.Context) error {
	timeRange := c.QueryParam("range")
	if timeRange == "" {
		timeRange = "1h"
	}
	since, err := parseTimeRange(timeRange, time.Now())
	if err != nil {
		slog.Warn("Invalid time range parameter in metrics request", "range", timeRange, "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid time range"})
	}

	summary := s.Metrics.Summary()
	errorCount := 0
	for _, e := range summary.RecentErrors {
		if !e.Timestamp.Before(since) {
			errorCount++
		}
	}

	return c.JSON(http.StatusOK, MetricsOverviewResponse{
		Status:        s.Metrics.Health().Status,
		TotalRequests: summary.Service.TotalRequests,
		SuccessRate:   summary.Service.SuccessRate,
		AvgLatencyMs:  int64(summary.Service.AvgResponseTime * 1000),
		ErrorCount:    errorCount,
		CacheHitRate:  summary.Service.CacheHitRate,
		RateLimitHits: summary.Service.RateLimitHits,
		TimeRange:     timeRange,
	})
}

// parseTimeRange parses time range string and returns the start time
func parseTimeRange(timeRange string, now time.Time) (time.Time, error) {
	switch timeRange {
	case "5m":
		return now.Add(-5 * time.Minute), nil
	case "15m":
		return now.Add(-15 * time.Minute), nil
	case "1h":
		return now.Add(-1 * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("invalid time range: %s (valid: 5m, 15m, 1h)", timeRange)
	}
}
