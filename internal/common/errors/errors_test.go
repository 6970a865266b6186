package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	warns  []string
	errors []string
}

func (l *recordingLogger) Warn(msg string, fields map[string]interface{}) {
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Error(msg string, fields map[string]interface{}) {
	l.errors = append(l.errors, msg)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *StandardError
		want int
	}{
		{NewInvalidRequestError("empty query"), http.StatusBadRequest},
		{NewPropertyRequiredError(), http.StatusBadRequest},
		{NewPlanningError("analytics", "no usable metrics"), http.StatusBadRequest},
		{NewInvalidPropertyError("123", stderrors.New("403")), http.StatusBadRequest},
		{NewInvalidMetricCombinationError(stderrors.New("incompatible")), http.StatusBadRequest},
		{NewRateLimitedError(stderrors.New("429")), http.StatusTooManyRequests},
		{NewDataSourceUnreachableError("seo", stderrors.New("dial")), http.StatusBadGateway},
		{NewReasoningUnavailableError(stderrors.New("down")), http.StatusServiceUnavailable},
		{NewStageTimeoutError("execute-agent", time.Second), http.StatusGatewayTimeout},
		{NewInternalError(stderrors.New("bug")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus("SOMETHING_ELSE"))
}

func TestWorse(t *testing.T) {
	unreachable := NewDataSourceUnreachableError("seo", stderrors.New("dial"))
	property := NewInvalidPropertyError("1", nil)
	timeout := NewStageTimeoutError("execute-agent", time.Second)

	assert.Equal(t, unreachable, Worse(property, unreachable))
	assert.Equal(t, unreachable, Worse(unreachable, property))
	assert.Equal(t, unreachable, Worse(timeout, unreachable))
	assert.Equal(t, property, Worse(property, nil))
	assert.Equal(t, property, Worse(nil, property))

	other := NewInvalidPropertyError("2", nil)
	assert.Same(t, property, Worse(property, other))
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))

	planning := NewPlanningError("seo", "nothing usable")
	wrapped := fmt.Errorf("plan stage: %w", planning)
	assert.Same(t, planning, Normalize(wrapped))

	timeout := Normalize(fmt.Errorf("agent: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrCodeStageTimeout, timeout.Code)

	internal := Normalize(stderrors.New("nil map"))
	assert.Equal(t, ErrCodeInternal, internal.Code)
	assert.Equal(t, "nil map", internal.Details)
}

func TestStandardError_UnwrapAndStage(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewDataSourceUnreachableError("seo", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "seo", err.Domain)
	assert.Contains(t, err.Error(), "DATA_SOURCE_UNREACHABLE")

	staged := err.WithStage("Executing")
	assert.Equal(t, "Executing", staged.Stage)
	assert.Empty(t, err.Stage)
}

func TestRetryAndCategory(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeRateLimited))
	assert.True(t, IsRetryableErrorCode(ErrCodeReasoningUnavailable))
	assert.False(t, IsRetryableErrorCode(ErrCodeDataSourceUnreachable))
	assert.False(t, IsRetryableErrorCode(ErrCodePlanningError))

	assert.Equal(t, "REASONING", GetErrorCategory(ErrCodeRateLimited))
	assert.Equal(t, "ANALYTICS", GetErrorCategory(ErrCodeInvalidProperty))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

func TestErrorHandler_WriteError(t *testing.T) {
	log := &recordingLogger{}
	h := NewErrorHandler(log)

	rec := httptest.NewRecorder()
	h.WriteError(rec, "req-1", NewRateLimitedError(stderrors.New("429 Too Many Requests")))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req-1", body.RequestID)
	assert.Equal(t, ErrCodeRateLimited, body.Error.Code)
	assert.Len(t, log.warns, 1)

	rec = httptest.NewRecorder()
	h.WriteError(rec, "req-2", NewReasoningUnavailableError(stderrors.New("down")))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Len(t, log.errors, 1)
}
