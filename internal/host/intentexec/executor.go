// Package intentexec executes resolved intents against the generation
// backend on behalf of the host controller.
package intentexec

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/draftforge/preview/internal/infrastructure/resilience"
	"github.com/draftforge/preview/internal/logging"
)

// Result is the backend's answer to an executed intent.
type Result struct {
	Toast       string         `json:"toast,omitempty"`
	RedirectURL string         `json:"redirectUrl,omitempty"`
	OpenOverlay string         `json:"openOverlay,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// ToMap flattens the result for the wire-facing intent result message.
func (r *Result) ToMap() map[string]any {
	raw, err := sonic.Marshal(r)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Executor runs one intent and reports its outcome.
type Executor interface {
	Execute(ctx context.Context, name string, payload map[string]any) (*Result, error)
}

// Config tunes the HTTP executor.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RPS        float64
	Logger     *logging.Logger
}

// Client is the production executor: resty over a retrying transport,
// rate limited and wrapped in a circuit breaker.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *logging.Logger
}

// NewClient builds an executor for the backend at cfg.BaseURL.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Component("intentexec")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "draftforge-preview/1.0").
		SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), int(cfg.RPS)+1)
	}

	breaker := resilience.New("intent-backend", resilience.Options{
		TripAfter: 5,
		Cooldown:  15 * time.Second,
		OnTransition: func(name string, from, to resilience.State) {
			logger.Warn("breaker transition",
				zap.String("upstream", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{resty: restyClient, limiter: limiter, breaker: breaker, logger: logger}
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

type executeRequest struct {
	Intent  string         `json:"intent"`
	Payload map[string]any `json:"payload"`
}

// Execute posts the intent to the backend. Admission failures (open
// breaker, cancelled rate wait) surface as errors; the controller
// translates them into a failed intent result.
func (c *Client) Execute(ctx context.Context, name string, payload map[string]any) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var result Result
	err := c.breaker.Do(func() error {
		resp, err := c.resty.R().
			SetContext(ctx).
			SetBody(executeRequest{Intent: name, Payload: payload}).
			SetResult(&result).
			Post("/v1/intents/execute")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("backend returned %s", resp.Status())
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("intent execution failed", zap.String("intent", name), zap.Error(err))
		return nil, err
	}
	return &result, nil
}
