package server

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/events"
	"github.com/agentmux/agentmux/internal/events/bus"
	"github.com/agentmux/agentmux/internal/terminal"
)

// StreamSnapshot is one frame pushed over the terminal output stream.
type StreamSnapshot struct {
	TerminalID string `json:"terminal_id"`
	Output     string `json:"output"`
}

// handleTerminalStream upgrades to a WebSocket and pushes output snapshots:
// one on connect, then a fresh one per log-change event for this terminal.
// GET /api/v1/terminals/:id/stream
func (s *Server) handleTerminalStream(c *gin.Context) {
	id := c.Param("id")
	log := s.logger.WithTerminalID(id)

	// Reject unknown terminals before upgrading.
	if _, err := s.terminals.GetTerminal(c.Request.Context(), id); err != nil {
		s.respondError(c, "failed to open stream", err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Debug("failed to close stream websocket", zap.Error(err))
		}
	}()

	log.Info("terminal stream connected")

	// Wake the writer on every log change. A full channel is fine: one
	// pending wakeup already forces a fresh snapshot.
	notify := make(chan struct{}, 1)
	sub, err := s.eventBus.Subscribe(events.BuildLogUpdatedSubject(id), func(ctx context.Context, event *bus.Event) error {
		select {
		case notify <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		log.Error("failed to subscribe to log events", zap.Error(err))
		return
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Debug("failed to unsubscribe stream", zap.Error(err))
		}
	}()

	// We never expect client messages, but reading is how close frames
	// surface.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()
	if err := s.writeSnapshot(ctx, conn, id); err != nil {
		log.Debug("stream write failed", zap.Error(err))
		return
	}

	for {
		select {
		case <-done:
			log.Debug("terminal stream closed")
			return
		case <-notify:
			if err := s.writeSnapshot(ctx, conn, id); err != nil {
				log.Debug("stream write failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) writeSnapshot(ctx context.Context, conn *websocket.Conn, id string) error {
	output, err := s.terminals.GetOutput(ctx, id, terminal.OutputModeRecent)
	if err != nil {
		return err
	}
	return conn.WriteJSON(StreamSnapshot{TerminalID: id, Output: output})
}
