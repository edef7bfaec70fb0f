package profile

import (
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix shared by every environment override.
const EnvPrefix = "WEATHER"

// Viper keys. The env name of each key is WEATHER_ + upper(key with '-' as '_').
const (
	KeyMode               = "mode"
	KeyAddr               = "addr"
	KeyPort               = "port"
	KeyAPIBase            = "api-base"
	KeyUserAgent          = "user-agent"
	KeyTimeout            = "timeout"
	KeyMaxRetries         = "max-retries"
	KeyRetryDelay         = "retry-delay"
	KeyCacheTTL           = "cache-ttl"
	KeyMaxForecastPeriods = "max-forecast-periods"
	KeyRateLimit          = "rate-limit"
	KeyClientRPS          = "client-rps"
	KeyClientBurst        = "client-burst"
	KeyMetricsLogInterval = "metrics-log-interval"
)

// Profile is the configuration shared by the pipeline, the tool operations and the server.
// It is immutable once Load returns.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for the HTTP surface
	Addr string
	// Port is the binding port for the HTTP surface
	Port int

	APIBase            string        // WEATHER_API_BASE (default: https://api.weather.gov)
	UserAgent          string        // WEATHER_USER_AGENT (default: enhanced-weather-mcp/2.0)
	Timeout            time.Duration // WEATHER_TIMEOUT, float seconds (default: 30)
	MaxRetries         int           // WEATHER_MAX_RETRIES (default: 3)
	RetryDelay         time.Duration // WEATHER_RETRY_DELAY, float seconds (default: 1.0)
	CacheTTL           time.Duration // WEATHER_CACHE_TTL, integer seconds (default: 300)
	MaxForecastPeriods int           // WEATHER_MAX_FORECAST_PERIODS (default: 5)
	RateLimitPerMinute int           // WEATHER_RATE_LIMIT (default: 60)

	// Inbound limiter for the HTTP surface, per client IP.
	ClientRPS   float64 // WEATHER_CLIENT_RPS (default: 10)
	ClientBurst int     // WEATHER_CLIENT_BURST (default: 20)

	MetricsLogInterval time.Duration // WEATHER_METRICS_LOG_INTERVAL, integer seconds (default: 300)
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyMode, "prod")
	v.SetDefault(KeyAddr, "")
	v.SetDefault(KeyPort, 8080)
	v.SetDefault(KeyAPIBase, "https://api.weather.gov")
	v.SetDefault(KeyUserAgent, "enhanced-weather-mcp/2.0")
	v.SetDefault(KeyTimeout, 30.0)
	v.SetDefault(KeyMaxRetries, 3)
	v.SetDefault(KeyRetryDelay, 1.0)
	v.SetDefault(KeyCacheTTL, 300)
	v.SetDefault(KeyMaxForecastPeriods, 5)
	v.SetDefault(KeyRateLimit, 60)
	v.SetDefault(KeyClientRPS, 10.0)
	v.SetDefault(KeyClientBurst, 20)
	v.SetDefault(KeyMetricsLogInterval, 300)
}

// Load reads the profile from v: defaults first, then WEATHER_* environment
// variables, then anything already bound on v (CLI flags). The result is validated.
func Load(v *viper.Viper) (*Profile, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	p := &Profile{
		Mode:               v.GetString(KeyMode),
		Addr:               v.GetString(KeyAddr),
		Port:               v.GetInt(KeyPort),
		APIBase:            strings.TrimRight(v.GetString(KeyAPIBase), "/"),
		UserAgent:          v.GetString(KeyUserAgent),
		Timeout:            seconds(v.GetFloat64(KeyTimeout)),
		MaxRetries:         v.GetInt(KeyMaxRetries),
		RetryDelay:         seconds(v.GetFloat64(KeyRetryDelay)),
		CacheTTL:           time.Duration(v.GetInt(KeyCacheTTL)) * time.Second,
		MaxForecastPeriods: v.GetInt(KeyMaxForecastPeriods),
		RateLimitPerMinute: v.GetInt(KeyRateLimit),
		ClientRPS:          v.GetFloat64(KeyClientRPS),
		ClientBurst:        v.GetInt(KeyClientBurst),
		MetricsLogInterval: time.Duration(v.GetInt(KeyMetricsLogInterval)) * time.Second,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// FromEnv loads the profile from defaults and environment variables only.
func FromEnv() (*Profile, error) {
	return Load(viper.New())
}

// Default returns the built-in profile without consulting the environment.
func Default() *Profile {
	return &Profile{
		Mode:               "prod",
		Port:               8080,
		APIBase:            "https://api.weather.gov",
		UserAgent:          "enhanced-weather-mcp/2.0",
		Timeout:            30 * time.Second,
		MaxRetries:         3,
		RetryDelay:         time.Second,
		CacheTTL:           300 * time.Second,
		MaxForecastPeriods: 5,
		RateLimitPerMinute: 60,
		ClientRPS:          10,
		ClientBurst:        20,
		MetricsLogInterval: 300 * time.Second,
	}
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// Validate rejects settings the pipeline cannot run with.
func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		slog.Warn("unknown mode, falling back to prod", slog.String("mode", p.Mode))
		p.Mode = "prod"
	}

	u, err := url.Parse(p.APIBase)
	if err != nil {
		return errors.Wrapf(err, "invalid api base %q", p.APIBase)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("api base must be an http(s) URL, got %q", p.APIBase)
	}
	if p.UserAgent == "" {
		return errors.New("user agent must not be empty")
	}
	if p.Timeout <= 0 {
		return errors.Errorf("timeout must be positive, got %s", p.Timeout)
	}
	if p.MaxRetries < 1 {
		return errors.Errorf("max retries must be at least 1, got %d", p.MaxRetries)
	}
	if p.RetryDelay < 0 {
		return errors.Errorf("retry delay must not be negative, got %s", p.RetryDelay)
	}
	if p.CacheTTL < 0 {
		return errors.Errorf("cache ttl must not be negative, got %s", p.CacheTTL)
	}
	if p.MaxForecastPeriods < 1 {
		return errors.Errorf("max forecast periods must be at least 1, got %d", p.MaxForecastPeriods)
	}
	if p.RateLimitPerMinute < 1 {
		return errors.Errorf("rate limit must be at least 1 per minute, got %d", p.RateLimitPerMinute)
	}
	if p.ClientRPS <= 0 || p.ClientBurst < 1 {
		return errors.Errorf("client limiter needs positive rps and burst, got %g/%d", p.ClientRPS, p.ClientBurst)
	}
	return nil
}

// TimeoutSeconds returns the timeout the way it is configured, in seconds.
func (p *Profile) TimeoutSeconds() float64 {
	return p.Timeout.Seconds()
}

func seconds(f float64) time.Duration {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
