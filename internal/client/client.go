// Package client provides an HTTP client for the agentmux control plane API.
// It is used by the launch command and by the MCP tool handlers, which proxy
// the same endpoints.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentmux/agentmux/internal/common/logger"
	"go.uber.org/zap"
)

// Client talks to a running agentmux server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a client for the control plane at baseURL,
// e.g. "http://localhost:9889".
func NewClient(baseURL string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Default()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.WithFields(zap.String("component", "api-client")),
	}
}

// BaseURL returns the server address this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health checks if the control plane is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

// apiError turns a non-2xx response into an error. The server reports
// failures as a {code, message} envelope; fall back to the bare status
// when the body is something else.
func apiError(op string, resp *http.Response) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Message == "" {
		return fmt.Errorf("failed to %s: status %d", op, resp.StatusCode)
	}
	return fmt.Errorf("failed to %s: %s (status %d)", op, errResp.Message, resp.StatusCode)
}
