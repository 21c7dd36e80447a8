package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/agentmux/agentmux/internal/terminal"
	"go.uber.org/zap"
)

// OutputResponse is a capture of a terminal's pane content.
type OutputResponse struct {
	TerminalID string `json:"terminal_id"`
	Mode       string `json:"mode"`
	Output     string `json:"output"`
}

// StatusResponse reports a terminal's classified agent status.
type StatusResponse struct {
	TerminalID string `json:"terminal_id"`
	Status     string `json:"status"`
}

// ListTerminals lists every managed terminal across all sessions.
func (c *Client) ListTerminals(ctx context.Context) (*TerminalsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/terminals", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list terminals: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("list terminals", resp)
	}

	var result TerminalsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// GetTerminal fetches a single terminal by ID.
func (c *Client) GetTerminal(ctx context.Context, id string) (*terminal.Terminal, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/terminals/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get terminal: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("get terminal", resp)
	}

	var result terminal.Terminal
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// GetOutput captures the terminal's pane content. Mode is "full", "recent"
// or "last"; the server defaults to full when it is empty.
func (c *Client) GetOutput(ctx context.Context, id, mode string) (*OutputResponse, error) {
	endpoint := c.baseURL + "/api/v1/terminals/" + url.PathEscape(id) + "/output"
	if mode != "" {
		endpoint += "?mode=" + url.QueryEscape(mode)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get output: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("get output", resp)
	}

	var result OutputResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// GetStatus returns the terminal's agent status (idle, processing,
// waiting_user_answer, completed or error).
func (c *Client) GetStatus(ctx context.Context, id string) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/terminals/"+url.PathEscape(id)+"/status", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("get status", resp)
	}

	var result StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// SendInput types a message into the terminal's agent prompt.
func (c *Client) SendInput(ctx context.Context, id, message string) error {
	payload := struct {
		Message string `json:"message"`
	}{Message: message}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/terminals/"+url.PathEscape(id)+"/input", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send input: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return apiError("send input", resp)
	}
	return nil
}

// DeleteTerminal exits the agent and destroys the terminal.
func (c *Client) DeleteTerminal(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", c.baseURL+"/api/v1/terminals/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete terminal: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return apiError("delete terminal", resp)
	}

	c.logger.Info("terminal destroyed", zap.String("terminal_id", id))
	return nil
}
