// REST client for the NeuroGen server's status, cancel, submit, and
// liveness endpoints.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/LosAICode/neurogen-client/internal/shared"
	"github.com/LosAICode/neurogen-client/internal/track"
	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Client implements track.StatusClient against the NeuroGen REST API. All
// requests pass through a client-side rate limiter so aggressive
// min-interval polling cannot hammer the server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

var _ track.StatusClient = (*Client)(nil)

// ClientOpts contains configuration options for creating a Client.
type ClientOpts struct {
	BaseURL      string
	APIToken     string
	HTTPClient   *http.Client
	RateLimitRPS float64
	Logger       *log.Logger
}

// NewClient creates a REST client. When APIToken is set, requests carry a
// bearer token via an oauth2 static token source.
func NewClient(opts ClientOpts) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:5000"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 2
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	httpClient := opts.HTTPClient
	if opts.APIToken != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.APIToken})
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, opts.HTTPClient)
		httpClient = oauth2.NewClient(ctx, src)
	}

	return &Client{
		baseURL:    opts.BaseURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 2),
		logger:     opts.Logger,
	}
}

// TaskStatus fetches the raw status payload for a task.
func (c *Client) TaskStatus(ctx context.Context, tt track.TaskType, taskID string) (map[string]any, error) {
	return c.getJSON(ctx, tt.StatusPath(taskID))
}

// CancelTask requests server-side cancellation of a task.
func (c *Client) CancelTask(ctx context.Context, tt track.TaskType, taskID string) error {
	body, err := c.postJSON(ctx, tt.CancelPath(taskID), nil)
	if err != nil {
		return err
	}
	if success, ok := body["success"].(bool); ok && !success {
		msg, _ := body["message"].(string)
		return fmt.Errorf("%w: %s", shared.ErrCancelFailed, msg)
	}
	return nil
}

// Ping probes the liveness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	body, err := c.getJSON(ctx, "/api/ping")
	if err != nil {
		return err
	}
	if status, _ := body["status"].(string); status != "ok" {
		return fmt.Errorf("%w: unexpected ping response %q", shared.ErrAPIRequest, status)
	}
	return nil
}

// Submit starts a new job of the given type and returns the server-assigned
// task id.
func (c *Client) Submit(ctx context.Context, tt track.TaskType, params map[string]any) (string, error) {
	body, err := c.postJSON(ctx, tt.SubmitPath(), params)
	if err != nil {
		return "", err
	}
	taskID, _ := body["task_id"].(string)
	if taskID == "" {
		return "", fmt.Errorf("%w: submission response carried no task_id", shared.ErrAPIRequest)
	}
	return taskID, nil
}

func (c *Client) getJSON(ctx context.Context, path string) (map[string]any, error) {
	return c.doJSON(ctx, http.MethodGet, path, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, params map[string]any) (map[string]any, error) {
	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	return c.doJSON(ctx, http.MethodPost, path, body)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %s returned %d", shared.ErrAPIRequest, method, path, resp.StatusCode)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON from %s: %v", shared.ErrAPIRequest, path, err)
	}
	return payload, nil
}
