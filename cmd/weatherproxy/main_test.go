package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug", "json")
	require.NoError(t, err)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger, err = newLogger("WARN", "TEXT")
	require.NoError(t, err)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))

	_, err = newLogger("loud", "text")
	assert.Error(t, err)

	_, err = newLogger("info", "xml")
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"alerts", "forecast", "location-forecast", "health", "serve"} {
		assert.True(t, names[want], want)
	}

	for _, flag := range []string{"timeout", "max-retries", "cache-ttl", "rate-limit", "log-level", "log-format"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}
