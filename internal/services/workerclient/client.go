// Package workerclient calls the browser worker control protocol.
package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/linkprobe/internal/interfaces"
	"github.com/ternarybob/linkprobe/internal/models"
)

const (
	// DefaultTimeout covers the worker's 60s budget plus transport slack.
	DefaultTimeout = 75 * time.Second

	// maxErrorBody caps how much of a failed response is kept in the error.
	maxErrorBody = 1024
)

// Client is a browser worker client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds each call, independent of the worker's own budget.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit throttles outgoing runs. A zero rate disables throttling.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a worker client for baseURL. token is sent as a bearer
// credential when non-empty.
func NewClient(baseURL, token string, opts ...ClientOption) interfaces.WorkerClient {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WorkerError is a non-success answer from the worker.
type WorkerError struct {
	StatusCode int
	Message    string
}

func (e *WorkerError) Error() string {
	if e.StatusCode != http.StatusOK {
		return fmt.Sprintf("Worker returned %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

// Unwrap classifies every WorkerError as a reported failure.
func (e *WorkerError) Unwrap() error {
	return models.ErrWorkerReportedFailure
}

// Run posts req to /run and decodes the result.
func (c *Client) Run(ctx context.Context, req *models.RunRequest) (*models.RunResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("dispatch throttle: %w", err)
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	if c.logger != nil {
		c.logger.Debug().Str("test_id", req.ID).Str("worker", c.baseURL).Msg("Calling browser worker")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &WorkerError{StatusCode: resp.StatusCode, Message: errorText(data)}
	}

	var result models.RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &WorkerError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("invalid response body: %v", err)}
	}
	if !result.Success {
		message := result.Error
		if message == "" {
			message = "Worker reported failure"
		}
		return nil, &WorkerError{StatusCode: resp.StatusCode, Message: message}
	}

	return &result, nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	var health models.HealthResponse
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &WorkerError{StatusCode: resp.StatusCode, Message: errorText(data)}
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil || health.Status != "ok" {
		return &WorkerError{StatusCode: resp.StatusCode, Message: "worker is not healthy"}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// transportError keeps ctx errors matchable alongside ErrWorkerUnreachable.
func (c *Client) transportError(err error) error {
	return fmt.Errorf("%w: %w", models.ErrWorkerUnreachable, err)
}

// errorText prefers the protocol's {"error": ...} field over the raw body.
func errorText(data []byte) string {
	var failure models.FailureResponse
	if err := json.Unmarshal(data, &failure); err == nil && failure.Error != "" {
		return failure.Error
	}
	text := strings.TrimSpace(string(data))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return text
}
