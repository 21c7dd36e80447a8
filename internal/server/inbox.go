package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentmux/agentmux/internal/common/errors"
	"github.com/agentmux/agentmux/internal/inbox"
)

// SendMessageRequest is the body for queueing an inbox message.
type SendMessageRequest struct {
	SenderID string `json:"sender_id"`
	Message  string `json:"message"`
}

// MessagesResponse lists inbox messages for a terminal.
type MessagesResponse struct {
	Messages []*inbox.Message `json:"messages"`
	Total    int              `json:"total"`
}

// handleSendInboxMessage queues a message for delivery when the receiving
// agent is ready. Delivery itself is event-driven; this returns as soon as
// the message is stored.
// POST /api/v1/terminals/:id/inbox/messages
func (s *Server) handleSendInboxMessage(c *gin.Context) {
	id := c.Param("id")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := apperrors.BadRequest("invalid request: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	msg, err := s.inbox.EnqueueMessage(c.Request.Context(), id, req.SenderID, req.Message)
	if err != nil {
		s.respondError(c, "failed to queue inbox message", err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// handleListInboxMessages lists a terminal's inbox, newest first, optionally
// filtered by status.
// GET /api/v1/terminals/:id/inbox/messages?status=&limit=
func (s *Server) handleListInboxMessages(c *gin.Context) {
	id := c.Param("id")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			appErr := apperrors.ValidationError("limit", "limit must be an integer")
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		limit = n
	}

	messages, err := s.inbox.ListMessages(c.Request.Context(), id, c.Query("status"), limit)
	if err != nil {
		s.respondError(c, "failed to list inbox messages", err)
		return
	}

	c.JSON(http.StatusOK, MessagesResponse{
		Messages: messages,
		Total:    len(messages),
	})
}
