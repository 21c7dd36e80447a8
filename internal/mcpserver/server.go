// Package mcpserver exposes the agentmux control plane as MCP tools so that
// agents running inside managed terminals can inspect and drive their
// neighbours. It serves both SSE and Streamable HTTP transports.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/client"
	"github.com/agentmux/agentmux/internal/common/logger"
)

// Config holds the MCP server configuration.
type Config struct {
	// Port to listen on. Port 0 asks the OS for a free port; Start records
	// the port actually bound.
	Port int
	// APIURL is the base URL of the control plane API the tools proxy.
	APIURL string
}

// Server serves the agentmux tool set over both MCP HTTP transports on one
// port: SSE under /sse and /message for clients like Claude Desktop and
// Cursor, and Streamable HTTP under /mcp for Codex.
type Server struct {
	cfg Config
	log *logger.Logger

	mu         sync.Mutex
	running    bool
	httpServer *http.Server
	sse        *server.SSEServer
	streamable *server.StreamableHTTPServer
}

// New creates an MCP server whose tools proxy the control plane at
// cfg.APIURL.
func New(cfg Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		cfg: cfg,
		log: log.WithFields(zap.String("component", "mcp-server")),
	}
}

// Start binds the port and serves both transports from a goroutine. It
// returns once the listener is open, so a port conflict surfaces here rather
// than in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("mcp server already running")
	}

	mcpServer := server.NewMCPServer("agentmux-mcp", "1.0.0",
		server.WithToolCapabilities(true))
	registerTools(mcpServer, client.NewClient(s.cfg.APIURL, s.log), s.log)

	s.sse = server.NewSSEServer(mcpServer)
	s.streamable = server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"))

	// One mux, one port. The SSE transport needs both its event stream and
	// its message endpoint.
	mux := http.NewServeMux()
	mux.Handle("/sse", s.sse.SSEHandler())
	mux.Handle("/message", s.sse.MessageHandler())
	mux.Handle("/mcp", s.streamable)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.cfg.Port = addr.Port
	}

	s.httpServer = &http.Server{Handler: mux}
	s.running = true

	s.log.Info("MCP server listening",
		zap.Int("port", s.cfg.Port),
		zap.String("api_url", s.cfg.APIURL))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("MCP server failed", zap.Error(err))
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()
	return nil
}

// Stop shuts down the listener and releases per-session transport state.
// Stopping a server that is not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown MCP server: %w", err)
	}

	// The transports track client sessions independently of the listener.
	if err := s.sse.Shutdown(ctx); err != nil {
		s.log.Warn("SSE transport shutdown", zap.Error(err))
	}
	if err := s.streamable.Shutdown(ctx); err != nil {
		s.log.Warn("Streamable HTTP transport shutdown", zap.Error(err))
	}
	return nil
}

// Port returns the bound port. It differs from the configured port only when
// the configuration asked for port 0.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Port
}

// SSEEndpoint returns the URL SSE clients connect to.
func (s *Server) SSEEndpoint() string {
	return fmt.Sprintf("http://localhost:%d/sse", s.Port())
}

// StreamableHTTPEndpoint returns the URL Streamable HTTP clients connect to.
func (s *Server) StreamableHTTPEndpoint() string {
	return fmt.Sprintf("http://localhost:%d/mcp", s.Port())
}
