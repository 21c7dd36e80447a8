package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/agentmux/agentmux/internal/common/errors"
	"github.com/agentmux/agentmux/internal/inbox"
	"github.com/agentmux/agentmux/internal/provider"
	"github.com/agentmux/agentmux/internal/terminal"
	"github.com/agentmux/agentmux/internal/tmux"
)

// respondError translates a service error into the API error envelope:
// unknown ids map to 404, timeouts to 504, a dead multiplexer to 502,
// extraction failures to 422, validation failures to 400, and everything
// else to 500.
func (s *Server) respondError(c *gin.Context, message string, err error) {
	appErr := mapError(err, message)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		s.logger.Error(message,
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	c.JSON(appErr.HTTPStatus, appErr)
}

func mapError(err error, fallback string) *apperrors.AppError {
	switch {
	case errors.Is(err, provider.ErrUnknownTerminal),
		errors.Is(err, tmux.ErrWindowNotFound):
		return apperrors.NotFound(err.Error(), err)
	case errors.Is(err, provider.ErrTimeout):
		return apperrors.Timeout(err.Error(), err)
	case errors.Is(err, tmux.ErrMultiplexerUnavailable):
		return apperrors.BadGateway(err.Error(), err)
	case errors.Is(err, provider.ErrNoResponse),
		errors.Is(err, provider.ErrEmptyResponse):
		return apperrors.Unprocessable(err.Error(), err)
	case errors.Is(err, provider.ErrUnknownKind),
		errors.Is(err, provider.ErrProfileRequired),
		errors.Is(err, terminal.ErrInvalidOutputMode),
		errors.Is(err, inbox.ErrEmptyBody),
		errors.Is(err, inbox.ErrInvalidStatus):
		return apperrors.BadRequest(err.Error())
	default:
		return apperrors.InternalError(fallback, err)
	}
}
