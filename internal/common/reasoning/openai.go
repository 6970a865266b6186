package reasoning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"query-orchestrator/internal/common/config"
	"query-orchestrator/internal/common/logger"
	"query-orchestrator/internal/common/metrics"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"golang.org/x/time/rate"
)

type ClientConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration // per attempt
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	RatePerSecond float64
	Burst         int
}

// ClientConfigFrom converts the millisecond-based service config.
func ClientConfigFrom(c config.LLMConfig) ClientConfig {
	return ClientConfig{
		BaseURL:       c.BaseURL,
		APIKey:        c.APIKey,
		Model:         c.Model,
		Temperature:   c.Temperature,
		MaxTokens:     c.MaxTokens,
		Timeout:       config.GetDuration(c.Timeout),
		MaxRetries:    c.MaxRetries,
		BaseDelay:     config.GetDuration(c.BaseDelay),
		MaxDelay:      config.GetDuration(c.MaxDelay),
		RatePerSecond: c.RatePerSecond,
		Burst:         c.Burst,
	}
}

// Client talks to an OpenAI-compatible chat completions endpoint (a LiteLLM
// proxy in production). It owns retries; the SDK's own retry loop is disabled.
type Client struct {
	api     openai.Client
	cfg     ClientConfig
	limiter *rate.Limiter
	logger  logger.Logger
}

func NewClient(cfg ClientConfig, httpClient *http.Client, log logger.Logger) *Client {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 8 * cfg.BaseDelay
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
		option.WithHTTPClient(httpClient),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	return &Client{
		api:     openai.NewClient(opts...),
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  log.With(map[string]interface{}{"component": "reasoning", "model": cfg.Model}),
	}
}

func (c *Client) Complete(ctx context.Context, prompt Prompt, cons Constraints) (string, error) {
	params := c.buildParams(prompt, cons)

	var lastErr error
	rateLimited := false
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.ReasoningCalls.WithLabelValues("retry").Inc()
			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return "", fmt.Errorf("reasoning cancelled: %w", ctx.Err())
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("reasoning cancelled: %w", ctx.Err())
			}
			return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
		}

		text, err := c.once(ctx, params)
		if err == nil {
			metrics.ReasoningCalls.WithLabelValues("ok").Inc()
			return text, nil
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("reasoning cancelled: %w", ctx.Err())
		}

		lastErr = err
		retry, limited := classify(err)
		rateLimited = limited
		c.logger.Warn("reasoning attempt failed", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err.Error(),
			"retry":   retry && attempt < c.cfg.MaxRetries,
		})
		if !retry {
			break
		}
	}

	if rateLimited {
		metrics.ReasoningCalls.WithLabelValues("rate_limited").Inc()
		return "", fmt.Errorf("%w: %v", ErrRateLimited, lastErr)
	}
	metrics.ReasoningCalls.WithLabelValues("unavailable").Inc()
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) once(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

var errEmptyCompletion = errors.New("completion returned no choices")

func (c *Client) buildParams(prompt Prompt, cons Constraints) openai.ChatCompletionNewParams {
	system := prompt.System
	if len(cons.Labels) > 0 {
		system += "\nAnswer with exactly one of: " + strings.Join(cons.Labels, ", ") + "."
	}

	maxTokens := c.cfg.MaxTokens
	if cons.MaxTokens > 0 {
		maxTokens = cons.MaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt.User),
		},
		Temperature: openai.Float(c.cfg.Temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	if cons.Format == FormatJSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

// backoff doubles from BaseDelay per attempt, capped at MaxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BaseDelay << uint(attempt-1)
	if d <= 0 || d > c.cfg.MaxDelay {
		return c.cfg.MaxDelay
	}
	return d
}

// classify reports whether err may succeed on retry and whether the upstream
// signalled rate limiting.
func classify(err error) (retry bool, rateLimited bool) {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusTooManyRequests:
			return true, true
		case apierr.StatusCode >= 500:
			return true, false
		default:
			return false, false
		}
	}
	// transport failures, per-attempt timeouts, empty completions
	return true, false
}
