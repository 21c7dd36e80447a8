// Package server exposes the control plane over HTTP: session and terminal
// lifecycle, output and status queries, inbox messages, and a WebSocket
// stream of terminal output snapshots.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/httpmw"
	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/events/bus"
	"github.com/agentmux/agentmux/internal/inbox"
	"github.com/agentmux/agentmux/internal/profile"
	"github.com/agentmux/agentmux/internal/terminal"
)

// Server is the HTTP API server for the control plane.
type Server struct {
	terminals *terminal.Service
	inbox     *inbox.Service
	profiles  *profile.Manager
	eventBus  bus.EventBus
	logger    *logger.Logger
	router    *gin.Engine

	upgrader websocket.Upgrader
}

// NewServer wires the API server over the terminal, inbox and profile
// services. The event bus feeds the output stream endpoint.
func NewServer(terminals *terminal.Service, inboxSvc *inbox.Service, profiles *profile.Manager, eventBus bus.EventBus, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	if log == nil {
		log = logger.Default()
	}
	s := &Server{
		terminals: terminals,
		inbox:     inboxSvc,
		profiles:  profiles,
		eventBus:  eventBus,
		logger:    log.WithFields(zap.String("component", "api-server")),
		router:    gin.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local control plane, clients connect from anywhere
			},
		},
	}

	s.router.Use(httpmw.RequestLogger(s.logger, "agentmux"))
	s.router.Use(httpmw.OtelTracing("agentmux"))

	s.setupRoutes()
	return s
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api/v1")
	{
		// Session lifecycle
		api.POST("/sessions", s.handleCreateSession)
		api.GET("/sessions", s.handleListSessions)
		api.GET("/sessions/:name/terminals", s.handleListSessionTerminals)

		// Terminal queries and control
		api.GET("/terminals", s.handleListTerminals)
		api.GET("/terminals/:id", s.handleGetTerminal)
		api.GET("/terminals/:id/output", s.handleGetOutput)
		api.GET("/terminals/:id/status", s.handleGetStatus)
		api.POST("/terminals/:id/input", s.handleSendInput)
		api.DELETE("/terminals/:id", s.handleDeleteTerminal)

		// Inter-agent inbox
		api.GET("/terminals/:id/inbox/messages", s.handleListInboxMessages)
		api.POST("/terminals/:id/inbox/messages", s.handleSendInboxMessage)

		// Live output stream
		api.GET("/terminals/:id/stream", s.handleTerminalStream)
	}
}

// Health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
