package profile

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var weatherEnvVars = []string{
	"WEATHER_MODE",
	"WEATHER_API_BASE",
	"WEATHER_USER_AGENT",
	"WEATHER_TIMEOUT",
	"WEATHER_MAX_RETRIES",
	"WEATHER_RETRY_DELAY",
	"WEATHER_CACHE_TTL",
	"WEATHER_MAX_FORECAST_PERIODS",
	"WEATHER_RATE_LIMIT",
	"WEATHER_CLIENT_RPS",
	"WEATHER_CLIENT_BURST",
}

// clearWeatherEnvVars blanks every override for the duration of the test.
// Load treats an empty variable the same as an unset one.
func clearWeatherEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range weatherEnvVars {
		t.Setenv(key, "")
	}
}

func TestProfileDefaults(t *testing.T) {
	clearWeatherEnvVars(t)

	p, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "prod", p.Mode)
	assert.Equal(t, "https://api.weather.gov", p.APIBase)
	assert.Equal(t, "enhanced-weather-mcp/2.0", p.UserAgent)
	assert.Equal(t, 30*time.Second, p.Timeout)
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, time.Second, p.RetryDelay)
	assert.Equal(t, 300*time.Second, p.CacheTTL)
	assert.Equal(t, 5, p.MaxForecastPeriods)
	assert.Equal(t, 60, p.RateLimitPerMinute)
	assert.False(t, p.IsDev())

	assert.Equal(t, Default(), p)
}

func TestProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		check    func(t *testing.T, p *Profile)
	}{
		{
			name:     "WEATHER_TIMEOUT accepts fractional seconds",
			envVar:   "WEATHER_TIMEOUT",
			envValue: "2.5",
			check: func(t *testing.T, p *Profile) {
				assert.Equal(t, 2500*time.Millisecond, p.Timeout)
				assert.InDelta(t, 2.5, p.TimeoutSeconds(), 1e-9)
			},
		},
		{
			name:     "WEATHER_MAX_RETRIES",
			envVar:   "WEATHER_MAX_RETRIES",
			envValue: "5",
			check: func(t *testing.T, p *Profile) {
				assert.Equal(t, 5, p.MaxRetries)
			},
		},
		{
			name:     "WEATHER_CACHE_TTL",
			envVar:   "WEATHER_CACHE_TTL",
			envValue: "60",
			check: func(t *testing.T, p *Profile) {
				assert.Equal(t, time.Minute, p.CacheTTL)
			},
		},
		{
			name:     "WEATHER_API_BASE trailing slash is trimmed",
			envVar:   "WEATHER_API_BASE",
			envValue: "http://localhost:9000/",
			check: func(t *testing.T, p *Profile) {
				assert.Equal(t, "http://localhost:9000", p.APIBase)
			},
		},
		{
			name:     "WEATHER_MODE dev",
			envVar:   "WEATHER_MODE",
			envValue: "dev",
			check: func(t *testing.T, p *Profile) {
				assert.True(t, p.IsDev())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearWeatherEnvVars(t)
			t.Setenv(tt.envVar, tt.envValue)

			p, err := FromEnv()
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestProfileFlagsOverrideEnv(t *testing.T) {
	clearWeatherEnvVars(t)
	t.Setenv("WEATHER_MAX_RETRIES", "7")

	v := viper.New()
	v.Set(KeyMaxRetries, 2)

	p, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 2, p.MaxRetries)
}

func TestProfileInvalidEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		errMsg   string
	}{
		{"zero retries", "WEATHER_MAX_RETRIES", "0", "max retries"},
		{"negative timeout", "WEATHER_TIMEOUT", "-1", "timeout"},
		{"non numeric timeout", "WEATHER_TIMEOUT", "abc", "timeout"},
		{"negative cache ttl", "WEATHER_CACHE_TTL", "-5", "cache ttl"},
		{"bad scheme", "WEATHER_API_BASE", "ftp://example.com", "http(s)"},
		{"zero rate limit", "WEATHER_RATE_LIMIT", "0", "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearWeatherEnvVars(t)
			t.Setenv(tt.envVar, tt.envValue)

			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProfileValidateUnknownMode(t *testing.T) {
	p := Default()
	p.Mode = "demo"

	require.NoError(t, p.Validate())
	assert.Equal(t, "prod", p.Mode)
}
