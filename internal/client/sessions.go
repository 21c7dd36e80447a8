package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/agentmux/agentmux/internal/terminal"
	"go.uber.org/zap"
)

// CreateSessionResponse is the terminal created for a new session.
type CreateSessionResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SessionName  string    `json:"session_name"`
	Provider     string    `json:"provider"`
	AgentProfile string    `json:"agent_profile"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionsResponse lists tmux sessions with terminal counts.
type SessionsResponse struct {
	Sessions []terminal.SessionSummary `json:"sessions"`
	Total    int                       `json:"total"`
}

// TerminalsResponse lists managed terminals.
type TerminalsResponse struct {
	Terminals []*terminal.Terminal `json:"terminals"`
	Total     int                  `json:"total"`
}

// CreateSession creates a new tmux session (or a window in an existing one)
// running the given agent profile. Provider and sessionName are optional;
// the server resolves the provider from the profile when it is empty.
func (c *Client) CreateSession(ctx context.Context, agentProfile, provider, sessionName string) (*CreateSessionResponse, error) {
	q := url.Values{}
	q.Set("agent_profile", agentProfile)
	if provider != "" {
		q.Set("provider", provider)
	}
	if sessionName != "" {
		q.Set("session_name", sessionName)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/sessions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return nil, apiError("create session", resp)
	}

	var result CreateSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Info("session created",
		zap.String("session", result.SessionName),
		zap.String("terminal_id", result.ID))

	return &result, nil
}

// ListSessions lists all tmux sessions the server knows about.
func (c *Client) ListSessions(ctx context.Context) (*SessionsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/sessions", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("list sessions", resp)
	}

	var result SessionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// ListSessionTerminals lists the terminals belonging to one tmux session.
func (c *Client) ListSessionTerminals(ctx context.Context, session string) (*TerminalsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/sessions/"+url.PathEscape(session)+"/terminals", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list session terminals: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("list session terminals", resp)
	}

	var result TerminalsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}
