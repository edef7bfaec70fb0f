package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hrygo/weatherproxy/internal/profile"
	"github.com/hrygo/weatherproxy/server"
)

const (
	keyLogLevel  = "log-level"
	keyLogFormat = "log-format"
)

var (
	rootCmd = &cobra.Command{
		Use:   "weatherproxy",
		Short: "A caching, rate-limited proxy for the National Weather Service API.",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := newLogger(viper.GetString(keyLogLevel), viper.GetString(keyLogFormat))
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
		SilenceUsage: true,
	}

	alertsCmd = &cobra.Command{
		Use:   "alerts REGION...",
		Short: "Show active alerts for one or more two-letter region codes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			severity, _ := cmd.Flags().GetString("severity")
			return withServer(cmd.Context(), func(ctx context.Context, s *server.Server) {
				if len(args) == 1 {
					fmt.Println(s.Weather.Alerts(ctx, args[0], severity))
					return
				}
				for i, out := range s.Weather.BatchAlerts(ctx, args, severity) {
					if i > 0 {
						fmt.Println()
					}
					fmt.Printf("## %s\n%s\n", strings.ToUpper(args[i]), out)
				}
			})
		},
	}

	forecastCmd = &cobra.Command{
		Use:     "forecast LAT LON",
		Short:   "Show the forecast for a coordinate pair",
		Example: "  weatherproxy forecast -- 37.7749 -122.4194",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServer(cmd.Context(), func(ctx context.Context, s *server.Server) {
				fmt.Println(s.Weather.ForecastFromStrings(ctx, args[0], args[1]))
			})
		},
	}

	locationForecastCmd = &cobra.Command{
		Use:   "location-forecast CITY STATE",
		Short: "Show the forecast for a city (geocoding is not available)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServer(cmd.Context(), func(ctx context.Context, s *server.Server) {
				fmt.Println(s.Weather.LocationForecast(ctx, args[0], args[1]))
			})
		},
	}

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Probe the weather API and report service health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServer(cmd.Context(), func(ctx context.Context, s *server.Server) {
				fmt.Println(s.Weather.HealthCheck(ctx))
			})
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool operations over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String(profile.KeyMode, "prod", `mode of server, can be "prod" or "dev"`)
	flags.String(profile.KeyAddr, "", "address of server")
	flags.Int(profile.KeyPort, 8080, "port of server")
	flags.String(profile.KeyAPIBase, "https://api.weather.gov", "base URL of the weather API")
	flags.String(profile.KeyUserAgent, "enhanced-weather-mcp/2.0", "User-Agent sent to the weather API")
	flags.Float64(profile.KeyTimeout, 30, "per-attempt request timeout in seconds")
	flags.Int(profile.KeyMaxRetries, 3, "attempts per request")
	flags.Float64(profile.KeyRetryDelay, 1, "backoff base in seconds")
	flags.Int(profile.KeyCacheTTL, 300, "cache TTL in seconds")
	flags.Int(profile.KeyMaxForecastPeriods, 5, "forecast periods shown")
	flags.Int(profile.KeyRateLimit, 60, "outbound requests allowed per minute")
	flags.Float64(profile.KeyClientRPS, 10, "inbound requests per second per client IP")
	flags.Int(profile.KeyClientBurst, 20, "inbound burst per client IP")
	flags.Int(profile.KeyMetricsLogInterval, 300, "seconds between metrics summary logs, 0 to disable")
	flags.String(keyLogLevel, "info", "log level: debug, info, warn or error")
	flags.String(keyLogFormat, "text", "log format: text or json")

	flags.VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(f.Name, f); err != nil {
			panic(err)
		}
	})

	alertsCmd.Flags().String("severity", "", "only show alerts of this severity (Extreme, Severe, Moderate, Minor)")

	rootCmd.AddCommand(alertsCmd, forecastCmd, locationForecastCmd, healthCmd, serveCmd)
}

// withServer builds the components for a one-shot command and releases them afterwards.
func withServer(ctx context.Context, fn func(context.Context, *server.Server)) error {
	p, err := profile.Load(viper.GetViper())
	if err != nil {
		return err
	}
	s, err := server.NewServer(ctx, p)
	if err != nil {
		return err
	}
	defer s.Shutdown(ctx)

	fn(ctx, s)
	return nil
}

func serve(ctx context.Context) error {
	p, err := profile.Load(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := server.NewServer(ctx, p)
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	c := make(chan os.Signal, 1)
	// Trigger graceful shutdown on SIGINT or SIGTERM.
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	if err := s.Start(ctx); err != nil {
		s.Shutdown(ctx)
		return errors.Wrap(err, "failed to start server")
	}
	printGreetings(p, s.Addr())

	go func() {
		<-c
		s.Shutdown(ctx)
		cancel()
	}()

	<-ctx.Done()
	return nil
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, errors.Errorf("invalid log format %q, expected text or json", format)
	}
}

func printGreetings(p *profile.Profile, addr string) {
	fmt.Printf("weatherproxy started in %s mode\n", p.Mode)
	fmt.Printf("  upstream: %s\n", p.APIBase)
	fmt.Printf("  listening: http://%s\n", addr)
	fmt.Printf("  limits: %d upstream requests/min, cache TTL %s\n", p.RateLimitPerMinute, p.CacheTTL)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
