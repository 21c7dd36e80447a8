package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentmux/agentmux/internal/common/errors"
	"github.com/agentmux/agentmux/internal/terminal"
)

// CreateSessionResponse describes a freshly provisioned terminal.
type CreateSessionResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SessionName  string    `json:"session_name"`
	Provider     string    `json:"provider"`
	AgentProfile string    `json:"agent_profile"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionsResponse lists multiplexer sessions with terminal counts.
type SessionsResponse struct {
	Sessions []terminal.SessionSummary `json:"sessions"`
	Total    int                       `json:"total"`
}

// TerminalsResponse lists terminal metadata.
type TerminalsResponse struct {
	Terminals []*terminal.Terminal `json:"terminals"`
	Total     int                  `json:"total"`
}

// handleCreateSession provisions a terminal running the requested agent.
// The provider is resolved from the query param, the profile's context
// frontmatter, the install preference, then the default, in that order.
// POST /api/v1/sessions?agent_profile=&provider=&session_name=
func (s *Server) handleCreateSession(c *gin.Context) {
	agentProfile := c.Query("agent_profile")
	if agentProfile == "" {
		appErr := apperrors.ValidationError("agent_profile", "agent_profile is required")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	kind, err := s.profiles.ResolveProvider(c.Query("provider"), agentProfile)
	if err != nil {
		s.respondError(c, "failed to resolve provider", err)
		return
	}

	term, err := s.terminals.CreateTerminal(c.Request.Context(), kind, agentProfile, c.Query("session_name"))
	if err != nil {
		s.respondError(c, "failed to create terminal", err)
		return
	}

	c.JSON(http.StatusCreated, CreateSessionResponse{
		ID:           term.ID,
		Name:         term.Window,
		SessionName:  term.Session,
		Provider:     string(term.ProviderKind),
		AgentProfile: term.AgentProfile,
		CreatedAt:    term.CreatedAt,
	})
}

// handleListSessions lists sessions and how many terminals each holds.
// GET /api/v1/sessions
func (s *Server) handleListSessions(c *gin.Context) {
	sessions, err := s.terminals.ListSessions(c.Request.Context())
	if err != nil {
		s.respondError(c, "failed to list sessions", err)
		return
	}

	c.JSON(http.StatusOK, SessionsResponse{
		Sessions: sessions,
		Total:    len(sessions),
	})
}

// handleListSessionTerminals lists the terminals registered in one session.
// GET /api/v1/sessions/:name/terminals
func (s *Server) handleListSessionTerminals(c *gin.Context) {
	terminals, err := s.terminals.ListSessionTerminals(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.respondError(c, "failed to list session terminals", err)
		return
	}

	c.JSON(http.StatusOK, TerminalsResponse{
		Terminals: terminals,
		Total:     len(terminals),
	})
}
