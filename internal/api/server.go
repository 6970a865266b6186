// Package api exposes the orchestrator over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "query-orchestrator/internal/common/errors"
	"query-orchestrator/internal/common/logger"
	"query-orchestrator/internal/models"
)

const RequestIDHeader = "X-Request-ID"

// Querier answers one question. *orchestrator.Orchestrator satisfies it.
type Querier interface {
	Run(ctx context.Context, requestID string, q models.Query) (*models.QueryResponse, error)
}

// Check is one readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type Config struct {
	Version        string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	CheckTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Version:      "1.0.0",
		MaxBodyBytes: 64 << 10,
		CheckTimeout: 2 * time.Second,
	}
}

type Server struct {
	config  Config
	querier Querier
	checks  []Check
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewServer(cfg Config, querier Querier, checks []Check, log logger.Logger) *Server {
	log = log.With(map[string]interface{}{"component": "api"})
	return &Server{
		config:  cfg,
		querier: querier,
		checks:  checks,
		errors:  apperrors.NewErrorHandler(log),
		logger:  log,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)

	req, err := s.decode(w, r)
	if err != nil {
		s.errors.WriteError(w, requestID, err)
		return
	}

	ctx := r.Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	resp, err := s.querier.Run(ctx, requestID, models.Query{Text: req.Query, PropertyID: req.PropertyID})
	if err != nil {
		if r.Context().Err() != nil {
			// client went away; nobody is left to read a response
			s.logger.Info("client disconnected", map[string]interface{}{"requestId": requestID})
			return
		}
		s.errors.WriteError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (*queryRequest, error) {
	body := r.Body
	if s.config.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}

	var req queryRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, apperrors.NewInvalidRequestError(fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
		case errors.Is(err, io.EOF):
			return nil, apperrors.NewInvalidRequestError("body is empty")
		default:
			return nil, apperrors.NewInvalidRequestError("body is not valid JSON: " + err.Error())
		}
	}
	req.Query = strings.TrimSpace(req.Query)
	req.PropertyID = strings.TrimSpace(req.PropertyID)
	if err := validateRequest(&req); err != nil {
		return nil, apperrors.NewInvalidRequestError(err.Error())
	}
	return &req, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.config.Version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.config.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CheckTimeout)
		defer cancel()
	}

	status, code := "ready", http.StatusOK
	results := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.Fn(ctx); err != nil {
			results[c.Name] = err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
			s.logger.Warn("readiness check failed", map[string]interface{}{"check": c.Name, "error": err.Error()})
			continue
		}
		results[c.Name] = "ok"
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": results,
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
