package mcpserver

import (
	"context"
	"sync"
	"time"

	"github.com/agentmux/agentmux/internal/common/logger"
)

// Provide starts an MCP server and returns it together with an idempotent
// stop function, matching the shape of the other component providers wired
// up during command startup.
func Provide(cfg Config, log *logger.Logger) (*Server, func() error, error) {
	srv := New(cfg, log)
	if err := srv.Start(); err != nil {
		return nil, nil, err
	}

	var once sync.Once
	stop := func() error {
		var err error
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = srv.Stop(ctx)
		})
		return err
	}
	return srv, stop, nil
}
