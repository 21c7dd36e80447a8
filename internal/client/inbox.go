package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/agentmux/agentmux/internal/inbox"
	"go.uber.org/zap"
)

// MessagesResponse lists inbox messages for a terminal.
type MessagesResponse struct {
	Messages []*inbox.Message `json:"messages"`
	Total    int              `json:"total"`
}

// SendInboxMessage queues a message for delivery to the terminal's agent.
// The message is stored immediately and delivered when the agent is idle.
func (c *Client) SendInboxMessage(ctx context.Context, id, senderID, message string) (*inbox.Message, error) {
	payload := struct {
		SenderID string `json:"sender_id"`
		Message  string `json:"message"`
	}{SenderID: senderID, Message: message}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/terminals/"+url.PathEscape(id)+"/inbox/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send inbox message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return nil, apiError("send inbox message", resp)
	}

	var result inbox.Message
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Info("inbox message queued",
		zap.String("terminal_id", id),
		zap.String("message_id", result.ID))

	return &result, nil
}

// ListInboxMessages lists a terminal's inbox messages, newest first.
// Status filters by delivery state and limit caps the result; both are
// optional.
func (c *Client) ListInboxMessages(ctx context.Context, id, status string, limit int) (*MessagesResponse, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := c.baseURL + "/api/v1/terminals/" + url.PathEscape(id) + "/inbox/messages"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox messages: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("list inbox messages", resp)
	}

	var result MessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}
