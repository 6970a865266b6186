// Package errors provides the standardized error taxonomy surfaced by the query API.
package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidRequest           ErrorCode = "INVALID_REQUEST"
	ErrCodePlanningError            ErrorCode = "PLANNING_ERROR"
	ErrCodeReasoningUnavailable     ErrorCode = "REASONING_UNAVAILABLE"
	ErrCodeRateLimited              ErrorCode = "RATE_LIMITED"
	ErrCodeDataSourceUnreachable    ErrorCode = "DATA_SOURCE_UNREACHABLE"
	ErrCodeSchemaMismatch           ErrorCode = "SCHEMA_MISMATCH"
	ErrCodeInvalidProperty          ErrorCode = "INVALID_PROPERTY"
	ErrCodeInvalidMetricCombination ErrorCode = "INVALID_METRIC_COMBINATION"
	ErrCodeStageTimeout             ErrorCode = "STAGE_TIMEOUT"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Stage     string                 `json:"stage,omitempty"`
	Domain    string                 `json:"domain,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithStage returns a copy of e attributed to the named orchestration stage.
func (e *StandardError) WithStage(stage string) *StandardError {
	cp := *e
	cp.Stage = stage
	return &cp
}

// HTTPStatus returns the status code the API responds with for e.
func (e *StandardError) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

func newError(code ErrorCode, message, details string, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: IsRetryableErrorCode(code),
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidRequestError reports a malformed query: empty text, missing property and similar.
func NewInvalidRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid request", details, nil)
}

// NewPropertyRequiredError is the InvalidRequest raised when an analytics question has no property id.
func NewPropertyRequiredError() *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid request",
		"propertyId is required for analytics questions", nil)
}

// NewPlanningError reports a plan with zero usable fields after allowlist filtering.
func NewPlanningError(domain, reason string) *StandardError {
	e := newError(ErrCodePlanningError, "Could not build a query plan", reason, nil)
	e.Domain = domain
	return e
}

func NewReasoningUnavailableError(err error) *StandardError {
	return newError(ErrCodeReasoningUnavailable, "Reasoning service unavailable", errDetails(err), err)
}

func NewRateLimitedError(err error) *StandardError {
	return newError(ErrCodeRateLimited, "Reasoning service rate limit exceeded", errDetails(err), err)
}

// NewDataSourceRateLimitedError reports an upstream data source refusing the query for quota.
func NewDataSourceRateLimitedError(domain string, err error) *StandardError {
	e := newError(ErrCodeRateLimited, "Data source rate limit exceeded", errDetails(err), err)
	e.Domain = domain
	return e
}

func NewDataSourceUnreachableError(domain string, err error) *StandardError {
	e := newError(ErrCodeDataSourceUnreachable, "Data source unreachable", errDetails(err), err)
	e.Domain = domain
	return e
}

// NewSchemaMismatchError describes missing dataset columns. It is reported as a
// warning and never fails a request.
func NewSchemaMismatchError(missing []string) *StandardError {
	return newError(ErrCodeSchemaMismatch, "Dataset schema mismatch",
		fmt.Sprintf("missing columns: %s", strings.Join(missing, ", ")), nil)
}

func NewInvalidPropertyError(propertyID string, err error) *StandardError {
	e := newError(ErrCodeInvalidProperty, "Analytics property is invalid or not accessible",
		fmt.Sprintf("propertyId: %s, error: %s", propertyID, errDetails(err)), err)
	e.Domain = "analytics"
	return e
}

func NewInvalidMetricCombinationError(err error) *StandardError {
	e := newError(ErrCodeInvalidMetricCombination, "The requested metrics and dimensions cannot be combined", errDetails(err), err)
	e.Domain = "analytics"
	return e
}

// NewStageTimeoutError reports a stage that exceeded its time budget.
func NewStageTimeoutError(stage string, budget time.Duration) *StandardError {
	e := newError(ErrCodeStageTimeout, "The query could not complete within time",
		fmt.Sprintf("stage %s exceeded %s", stage, budget), nil)
	e.Stage = stage
	return e
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", errDetails(err), err)
}

// ==========================
// 3. Mapping Tables
// ==========================

var httpStatusMapping = map[ErrorCode]int{
	ErrCodeInvalidRequest:           http.StatusBadRequest,
	ErrCodePlanningError:            http.StatusBadRequest,
	ErrCodeInvalidProperty:          http.StatusBadRequest,
	ErrCodeInvalidMetricCombination: http.StatusBadRequest,
	ErrCodeRateLimited:              http.StatusTooManyRequests,
	ErrCodeDataSourceUnreachable:    http.StatusBadGateway,
	ErrCodeReasoningUnavailable:     http.StatusServiceUnavailable,
	ErrCodeStageTimeout:             http.StatusGatewayTimeout,
	ErrCodeSchemaMismatch:           http.StatusOK,
	ErrCodeInternal:                 http.StatusInternalServerError,
}

// HTTPStatus maps an error code to the API response status.
func HTTPStatus(code ErrorCode) int {
	if status, ok := httpStatusMapping[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// severity orders failures when two agents fail in the same request.
// Upstream and infrastructure failures outrank caller mistakes.
var severity = map[ErrorCode]int{
	ErrCodeSchemaMismatch:           0,
	ErrCodeInvalidRequest:           1,
	ErrCodePlanningError:            2,
	ErrCodeInvalidMetricCombination: 3,
	ErrCodeInvalidProperty:          4,
	ErrCodeRateLimited:              5,
	ErrCodeStageTimeout:             6,
	ErrCodeDataSourceUnreachable:    7,
	ErrCodeReasoningUnavailable:     8,
	ErrCodeInternal:                 9,
}

// Worse returns whichever of a and b is more severe. Ties keep a.
func Worse(a, b *StandardError) *StandardError {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case severity[b.Code] > severity[a.Code]:
		return b
	default:
		return a
	}
}

// GetRetryCount returns how many times the reasoning call chain may retry a code.
// Only reasoning failures are retried; agents and planners never retry.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRateLimited, ErrCodeReasoningUnavailable:
		return 5
	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeInvalidRequest, ErrCodePlanningError:
		return "REQUEST"
	case ErrCodeReasoningUnavailable, ErrCodeRateLimited:
		return "REASONING"
	case ErrCodeDataSourceUnreachable, ErrCodeSchemaMismatch:
		return "DATA_SOURCE"
	case ErrCodeInvalidProperty, ErrCodeInvalidMetricCombination:
		return "ANALYTICS"
	case ErrCodeStageTimeout:
		return "TIMEOUT"
	default:
		return "OTHER"
	}
}
