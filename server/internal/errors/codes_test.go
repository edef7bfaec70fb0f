package errors

import (
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestWeatherError_Error(t *testing.T) {
	err := APIUnavailable("API server error: 503")
	assert.Equal(t, "[API_UNAVAILABLE] API server error: 503", err.Error())

	wrapped := Wrap(fmt.Errorf("dial tcp: refused"), ErrCodeGeneric, "Unexpected error: dial tcp: refused")
	assert.Equal(t, "[GENERIC] Unexpected error: dial tcp: refused: dial tcp: refused", wrapped.Error())
}

func TestWeatherError_Retryable(t *testing.T) {
	tests := []struct {
		err       *WeatherError
		retryable bool
	}{
		{Validation("bad"), false},
		{RateLimitExceeded("slow down"), false},
		{NotFound("gone"), false},
		{APIUnavailable("down"), true},
		{Generic("odd"), true},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.err.Retryable())
		})
	}
}

func TestIsCode_ThroughWrapping(t *testing.T) {
	base := NotFound("Location not found or no data available")
	wrapped := pkgerrors.Wrap(base, "fetch points")

	assert.True(t, IsCode(wrapped, ErrCodeNotFound))
	assert.False(t, IsCode(wrapped, ErrCodeGeneric))
	assert.False(t, IsCode(fmt.Errorf("plain"), ErrCodeNotFound))

	assert.Equal(t, ErrCodeNotFound, GetCodeFromError(wrapped, ErrCodeGeneric))
	assert.Equal(t, ErrCodeGeneric, GetCodeFromError(fmt.Errorf("plain"), ErrCodeGeneric))
}

func TestUserMessage(t *testing.T) {
	msg, ok := UserMessage(Validation("State code cannot be empty"))
	assert.True(t, ok)
	assert.Equal(t, "State code cannot be empty", msg)

	_, ok = UserMessage(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestWithContext(t *testing.T) {
	err := APIUnavailable("HTTP error 403").WithContext("status", 403)
	assert.Equal(t, 403, err.Context["status"])
	assert.Equal(t, ErrCodeAPIUnavailable, err.GetCode())
}
