// Package pipeline executes outbound weather API requests.
//
// Every call is charged against the rate limiter first, then served from the
// cache when a live entry exists, and otherwise fetched with bounded retries
// and exponential backoff. Status 429 and 404 end the call immediately; every
// other failure is retried until the attempt budget is spent.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/hrygo/weatherproxy/internal/profile"
	apperrors "github.com/hrygo/weatherproxy/server/internal/errors"
	"github.com/hrygo/weatherproxy/server/internal/observability"
	"github.com/hrygo/weatherproxy/store/cache"
)

// AcceptGeoJSON is the media type requested from the upstream API.
const AcceptGeoJSON = "application/geo+json"

// Admitter decides whether a call may proceed.
type Admitter interface {
	Admit() error
}

// Config holds the pipeline settings.
type Config struct {
	Timeout    time.Duration // per attempt
	MaxRetries int           // total attempts
	RetryDelay time.Duration // backoff base
	CacheTTL   time.Duration
	UserAgent  string
}

// ConfigFromProfile extracts the pipeline settings from a profile.
func ConfigFromProfile(p *profile.Profile) Config {
	return Config{
		Timeout:    p.Timeout,
		MaxRetries: p.MaxRetries,
		RetryDelay: p.RetryDelay,
		CacheTTL:   p.CacheTTL,
		UserAgent:  p.UserAgent,
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics reports cache, rate-limit and upstream events to m.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) {
		p.sleep = sleep
	}
}

// Pipeline is safe for concurrent use. The limiter, the cache and the
// outbound client are shared by all calls.
type Pipeline struct {
	cfg     Config
	limiter Admitter
	cache   *cache.Store
	metrics *observability.Metrics
	sleep   func(ctx context.Context, d time.Duration) error

	inflight  singleflight.Group
	rejectLog rate.Sometimes

	mu     sync.Mutex
	client *resty.Client
}

// New creates a pipeline around the shared limiter and cache.
func New(cfg Config, limiter Admitter, store *cache.Store, opts ...Option) *Pipeline {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	p := &Pipeline{
		cfg:       cfg,
		limiter:   limiter,
		cache:     store,
		sleep:     sleepContext,
		rejectLog: rate.Sometimes{Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute fetches url and returns the JSON payload. An empty cacheKey disables caching.
// Failures are *apperrors.WeatherError values.
func (p *Pipeline) Execute(ctx context.Context, url, cacheKey string) (json.RawMessage, error) {
	logger := observability.LoggerFrom(ctx)

	if err := p.limiter.Admit(); err != nil {
		p.metrics.RecordRateLimitHit()
		p.rejectLog.Do(func() {
			logger.Warn("local rate limit exceeded", slog.String(observability.LogFieldURL, url))
		})
		return nil, err
	}

	if cacheKey == "" {
		return p.fetch(ctx, logger, url, "")
	}

	p.cache.SweepExpired()
	if payload, ok := p.cache.Lookup(cacheKey); ok {
		p.metrics.RecordCacheHit()
		logger.Info("cache hit", slog.String(observability.LogFieldCacheKey, cacheKey))
		return payload, nil
	}
	p.metrics.RecordCacheMiss()

	// The shared fetch is detached from every caller; each caller waits on its own ctx.
	ch := p.inflight.DoChan(cacheKey+"|"+url, func() (any, error) {
		fetchLogger := slog.Default().With(slog.String(observability.LogFieldCacheKey, cacheKey))
		return p.fetch(context.WithoutCancel(ctx), fetchLogger, url, cacheKey)
	})

	select {
	case <-ctx.Done():
		err := ctx.Err()
		logger.Info("caller left in-flight fetch",
			slog.String(observability.LogFieldCacheKey, cacheKey),
			slog.String("error", err.Error()))
		return nil, apperrors.Wrap(err, apperrors.ErrCodeGeneric, "Unexpected error: "+err.Error())
	case res := <-ch:
		if res.Shared {
			logger.Debug("shared in-flight fetch", slog.String(observability.LogFieldCacheKey, cacheKey))
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	}
}

// fetch runs the retry loop. On success the payload is cached under cacheKey, if any.
func (p *Pipeline) fetch(ctx context.Context, logger *slog.Logger, url, cacheKey string) (json.RawMessage, error) {
	var lastErr *apperrors.WeatherError

	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = apperrors.Wrap(err, apperrors.ErrCodeGeneric, "Unexpected error: "+err.Error())
			break
		}

		payload, err := p.attempt(ctx, logger, url, attempt)
		if err == nil {
			if cacheKey != "" {
				p.cache.Put(cacheKey, payload, p.cfg.CacheTTL)
			}
			logger.Info("successfully retrieved data", slog.String(observability.LogFieldURL, url))
			return payload, nil
		}
		if !err.Retryable() {
			return nil, err
		}
		lastErr = err

		if attempt < p.cfg.MaxRetries-1 {
			delay := p.backoff(attempt)
			logger.Info("retrying",
				slog.Int(observability.LogFieldAttempt, attempt+1),
				slog.Duration("delay", delay))
			if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
				lastErr = apperrors.Wrap(sleepErr, apperrors.ErrCodeGeneric, "Unexpected error: "+sleepErr.Error())
				break
			}
		}
	}

	if lastErr == nil {
		lastErr = apperrors.Generic("All retry attempts failed")
	}
	return nil, lastErr
}

// attempt issues a single GET and classifies the outcome.
func (p *Pipeline) attempt(ctx context.Context, logger *slog.Logger, url string, attempt int) (json.RawMessage, *apperrors.WeatherError) {
	attemptAttr := slog.Int(observability.LogFieldAttempt, attempt+1)
	logger.Info("making request", slog.String(observability.LogFieldURL, url), attemptAttr)

	resp, err := p.getClient().R().SetContext(ctx).Get(url)
	if err != nil {
		p.metrics.RecordUpstreamStatus(0)
		if isTimeout(err) {
			logger.Warn("request timeout", attemptAttr, slog.String("error", err.Error()))
			msg := "Request timeout after " + formatSeconds(p.cfg.Timeout) + "s"
			return nil, apperrors.Wrap(err, apperrors.ErrCodeAPIUnavailable, msg)
		}
		logger.Error("unexpected error", attemptAttr, slog.String("error", err.Error()))
		return nil, apperrors.Wrap(err, apperrors.ErrCodeGeneric, "Unexpected error: "+err.Error())
	}

	status := resp.StatusCode()
	p.metrics.RecordUpstreamStatus(status)
	statusAttr := slog.Int(observability.LogFieldStatus, status)

	switch {
	case status == 429:
		logger.Warn("upstream rate limit", attemptAttr, statusAttr)
		return nil, apperrors.RateLimitExceeded("API rate limit exceeded")
	case status >= 500:
		logger.Warn("upstream server error", attemptAttr, statusAttr)
		return nil, apperrors.APIUnavailable(fmt.Sprintf("API server error: %d", status)).WithContext("status", status)
	case status == 404:
		logger.Warn("upstream not found", attemptAttr, statusAttr)
		return nil, apperrors.NotFound("Location not found or no data available")
	case status < 200 || status >= 300:
		// Other 4xx statuses are retried like server errors.
		logger.Warn("upstream http error", attemptAttr, statusAttr)
		return nil, apperrors.APIUnavailable(fmt.Sprintf("HTTP error %d", status)).WithContext("status", status)
	}

	body := resp.Body()
	if !json.Valid(body) {
		logger.Error("unexpected error", attemptAttr, slog.String("error", "invalid JSON body"))
		return nil, apperrors.Generic("Unexpected error: response body is not valid JSON")
	}
	return json.RawMessage(body), nil
}

// backoff returns RetryDelay * 2^attempt, saturating at the largest Duration.
func (p *Pipeline) backoff(attempt int) time.Duration {
	if p.cfg.RetryDelay <= 0 {
		return 0
	}
	if attempt >= 63 || p.cfg.RetryDelay > time.Duration(math.MaxInt64)>>attempt {
		return time.Duration(math.MaxInt64)
	}
	return p.cfg.RetryDelay << attempt
}

// formatSeconds renders d in seconds with at least one decimal, e.g. "30.0" or "0.05".
func formatSeconds(d time.Duration) string {
	s := strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// getClient returns the shared client, creating it on first use.
func (p *Pipeline) getClient() *resty.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		p.client = resty.New().
			SetTimeout(p.cfg.Timeout).
			SetRetryCount(0).
			SetHeader("User-Agent", p.cfg.UserAgent).
			SetHeader("Accept", AcceptGeoJSON).
			SetLogger(restyLogger{})
	}
	return p.client
}

// Probe issues one GET through the shared client, bypassing the limiter,
// the cache and the retry policy. It reports the status and the latency.
func (p *Pipeline) Probe(ctx context.Context, url string) (int, time.Duration, error) {
	start := time.Now()
	resp, err := p.getClient().R().SetContext(ctx).Get(url)
	elapsed := time.Since(start)
	if err != nil {
		return 0, elapsed, errors.Wrap(err, "probe")
	}
	return resp.StatusCode(), elapsed, nil
}

// Close releases the shared client. It is safe to call more than once and
// before any request was made.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return nil
	}
	p.client.GetClient().CloseIdleConnections()
	p.client = nil
	slog.Info("weather client cleanup complete")
	return nil
}

// restyLogger sends the client's own diagnostics to slog at debug level.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...any) { slog.Debug("resty: " + fmt.Sprintf(format, v...)) }
func (restyLogger) Warnf(format string, v ...any)  { slog.Debug("resty: " + fmt.Sprintf(format, v...)) }
func (restyLogger) Debugf(format string, v ...any) { slog.Debug("resty: " + fmt.Sprintf(format, v...)) }

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
