package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	assert.Equal(t, "not_ready error: grid missing", New(ErrorTypeNotReady, "grid missing").Error())
	assert.Equal(t, "server_error error (code 503): busy",
		(&Error{Type: ErrorTypeServerError, Message: "busy", Code: 503}).Error())
}

func TestIsTypeThroughWrapping(t *testing.T) {
	base := New(ErrorTypeSubmission, "queue closed")
	wrapped := fmt.Errorf("submit: %w", base)

	assert.True(t, IsType(wrapped, ErrorTypeSubmission))
	assert.False(t, IsType(wrapped, ErrorTypeNetwork))
	assert.Equal(t, ErrorTypeSubmission, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(fmt.Errorf("plain")))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		want      bool
	}{
		{ErrorTypeNetwork, true},
		{ErrorTypeRateLimit, true},
		{ErrorTypeServerError, true},
		{ErrorTypeAuth, false},
		{ErrorTypeNotFound, false},
		{ErrorTypeInvalidRequest, false},
		{ErrorTypeStaleRun, false},
		{ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorType), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.errorType))
		})
	}
}

func TestStatusCodeMapping(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
		errorType ErrorType
	}{
		{0, true, ErrorTypeNetwork},
		{401, false, ErrorTypeAuth},
		{403, false, ErrorTypeAuth},
		{404, false, ErrorTypeNotFound},
		{408, true, ErrorTypeNetwork},
		{418, false, ErrorTypeInvalidRequest},
		{429, true, ErrorTypeRateLimit},
		{500, true, ErrorTypeServerError},
		{504, true, ErrorTypeServerError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.code), func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryableStatusCode(tt.code))
			assert.Equal(t, tt.errorType, FromStatusCode(tt.code))
		})
	}
}
