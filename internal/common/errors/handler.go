// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
)

// ErrorHandler turns any error into a StandardError response.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// ErrorResponse is the JSON body written for failed requests.
type ErrorResponse struct {
	Error     *StandardError `json:"error"`
	RequestID string         `json:"request_id,omitempty"`
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return newError(ErrCodeStageTimeout, "The query could not complete within time", err.Error(), err)
	}
	return NewInternalError(err)
}

// WriteError logs err and writes it as JSON with the mapped status code.
func (h *ErrorHandler) WriteError(w http.ResponseWriter, requestID string, err error) {
	stdErr := Normalize(err)
	status := stdErr.HTTPStatus()

	fields := map[string]interface{}{
		"requestId":     requestID,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"stage":         stdErr.Stage,
		"status":        status,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields)
	} else {
		h.logger.Warn("request rejected", fields)
	}

	if stdErr.Code == ErrCodeRateLimited {
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: stdErr, RequestID: requestID})
}

// StatusOf returns the HTTP status an error would be written with.
func StatusOf(err error) int {
	return Normalize(err).HTTPStatus()
}
