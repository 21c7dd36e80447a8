package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentmux/agentmux/internal/common/errors"
	"github.com/agentmux/agentmux/internal/terminal"
)

// OutputResponse carries captured terminal output.
type OutputResponse struct {
	TerminalID string `json:"terminal_id"`
	Mode       string `json:"mode"`
	Output     string `json:"output"`
}

// StatusResponse carries a terminal's computed status.
type StatusResponse struct {
	TerminalID string `json:"terminal_id"`
	Status     string `json:"status"`
}

// InputRequest is the body for typing text into a terminal.
type InputRequest struct {
	Message string `json:"message"`
}

// handleListTerminals lists every registered terminal.
// GET /api/v1/terminals
func (s *Server) handleListTerminals(c *gin.Context) {
	terminals, err := s.terminals.ListTerminals(c.Request.Context())
	if err != nil {
		s.respondError(c, "failed to list terminals", err)
		return
	}

	c.JSON(http.StatusOK, TerminalsResponse{
		Terminals: terminals,
		Total:     len(terminals),
	})
}

// handleGetTerminal returns one terminal's metadata.
// GET /api/v1/terminals/:id
func (s *Server) handleGetTerminal(c *gin.Context) {
	term, err := s.terminals.GetTerminal(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, "failed to get terminal", err)
		return
	}
	c.JSON(http.StatusOK, term)
}

// handleGetOutput captures the terminal's output in the requested mode.
// GET /api/v1/terminals/:id/output?mode=full|recent|last
func (s *Server) handleGetOutput(c *gin.Context) {
	id := c.Param("id")
	mode := c.DefaultQuery("mode", terminal.OutputModeFull)

	output, err := s.terminals.GetOutput(c.Request.Context(), id, mode)
	if err != nil {
		s.respondError(c, "failed to capture output", err)
		return
	}

	c.JSON(http.StatusOK, OutputResponse{
		TerminalID: id,
		Mode:       mode,
		Output:     output,
	})
}

// handleGetStatus computes the terminal's status from its scrollback.
// GET /api/v1/terminals/:id/status
func (s *Server) handleGetStatus(c *gin.Context) {
	id := c.Param("id")

	status, err := s.terminals.GetStatus(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, "failed to compute status", err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		TerminalID: id,
		Status:     string(status),
	})
}

// handleSendInput types a message into the terminal.
// POST /api/v1/terminals/:id/input
func (s *Server) handleSendInput(c *gin.Context) {
	id := c.Param("id")

	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := apperrors.BadRequest("invalid request: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	if req.Message == "" {
		appErr := apperrors.ValidationError("message", "message is required")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := s.terminals.SendInput(c.Request.Context(), id, req.Message); err != nil {
		s.respondError(c, "failed to send input", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "input sent",
		"terminal_id": id,
	})
}

// handleDeleteTerminal tears the terminal down and removes its metadata.
// DELETE /api/v1/terminals/:id
func (s *Server) handleDeleteTerminal(c *gin.Context) {
	id := c.Param("id")

	if err := s.terminals.DestroyTerminal(c.Request.Context(), id); err != nil {
		s.respondError(c, "failed to destroy terminal", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "terminal destroyed",
		"terminal_id": id,
	})
}
