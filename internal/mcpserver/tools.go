package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/client"
	"github.com/agentmux/agentmux/internal/common/logger"
)

func registerTools(s *server.MCPServer, api *client.Client, log *logger.Logger) {
	// List Sessions tool
	s.AddTool(
		mcp.NewTool("list_sessions",
			mcp.WithDescription("List all tmux sessions managed by agentmux, with terminal counts. Use this first to discover running sessions."),
		),
		listSessionsHandler(api, log),
	)

	// Create Session tool
	s.AddTool(
		mcp.NewTool("create_session",
			mcp.WithDescription("Create a new agent terminal. Starts a tmux session (or adds a window to an existing one) and launches the agent CLI in it."),
			mcp.WithString("agent_profile",
				mcp.Required(),
				mcp.Description("Name of the agent profile to run"),
			),
			mcp.WithString("provider",
				mcp.Description("Agent CLI to launch: q_cli, kiro_cli, claude_code, codex, droid or open_autoglm. Resolved from the profile when omitted."),
			),
			mcp.WithString("session_name",
				mcp.Description("tmux session to create the terminal in. A new session is created when omitted."),
			),
		),
		createSessionHandler(api, log),
	)

	// List Terminals tool
	s.AddTool(
		mcp.NewTool("list_terminals",
			mcp.WithDescription("List managed agent terminals. Use this to get terminal IDs for other operations."),
			mcp.WithString("session",
				mcp.Description("Limit the list to one tmux session (optional)"),
			),
		),
		listTerminalsHandler(api, log),
	)

	// Get Terminal tool
	s.AddTool(
		mcp.NewTool("get_terminal",
			mcp.WithDescription("Get a single terminal: its tmux session and window, provider kind, and agent profile."),
			mcp.WithString("terminal_id",
				mcp.Required(),
				mcp.Description("The terminal ID"),
			),
		),
		getTerminalHandler(api, log),
	)

	// Get Terminal Output tool
	s.AddTool(
		mcp.NewTool("get_terminal_output",
			mcp.WithDescription("Capture a terminal's pane content. Mode 'full' returns the whole scrollback, 'recent' the last screen, 'last' only the agent's last message."),
			mcp.WithString("terminal_id",
				mcp.Required(),
				mcp.Description("The terminal ID"),
			),
			mcp.WithString("mode",
				mcp.Description("Capture mode: full, recent or last (default full)"),
			),
		),
		getTerminalOutputHandler(api, log),
	)

	// Get Terminal Status tool
	s.AddTool(
		mcp.NewTool("get_terminal_status",
			mcp.WithDescription("Get the agent's current status in a terminal: idle, processing, waiting_user_answer, completed or error."),
			mcp.WithString("terminal_id",
				mcp.Required(),
				mcp.Description("The terminal ID"),
			),
		),
		getTerminalStatusHandler(api, log),
	)

	// Send Input tool
	s.AddTool(
		mcp.NewTool("send_input",
			mcp.WithDescription("Type a message into a terminal's agent prompt and submit it. Waits for the agent to accept input before typing."),
			mcp.WithString("terminal_id",
				mcp.Required(),
				mcp.Description("The terminal ID"),
			),
			mcp.WithString("message",
				mcp.Required(),
				mcp.Description("The text to type into the agent prompt"),
			),
		),
		sendInputHandler(api, log),
	)

	// Delete Terminal tool
	s.AddTool(
		mcp.NewTool("delete_terminal",
			mcp.WithDescription("Exit the agent gracefully and destroy the terminal. The tmux session is removed when this was its last window."),
			mcp.WithString("terminal_id",
				mcp.Required(),
				mcp.Description("The terminal ID"),
			),
		),
		deleteTerminalHandler(api, log),
	)

	// Send Inbox Message tool
	s.AddTool(
		mcp.NewTool("send_inbox_message",
			mcp.WithDescription("Queue a message for another agent. The message is delivered to the recipient's prompt when that agent is next idle, so it never interrupts work in progress."),
			mcp.WithString("terminal_id",
				mcp.Required(),
				mcp.Description("The recipient terminal ID"),
			),
			mcp.WithString("sender_id",
				mcp.Required(),
				mcp.Description("Identifier of the sender (your terminal ID, or a name like 'operator')"),
			),
			mcp.WithString("message",
				mcp.Required(),
				mcp.Description("The message body"),
			),
		),
		sendInboxMessageHandler(api, log),
	)

	// List Inbox Messages tool
	s.AddTool(
		mcp.NewTool("list_inbox_messages",
			mcp.WithDescription("List a terminal's inbox messages, newest first."),
			mcp.WithString("terminal_id",
				mcp.Required(),
				mcp.Description("The terminal ID whose inbox to read"),
			),
			mcp.WithString("status",
				mcp.Description("Filter by delivery status: PENDING, DELIVERED or FAILED (optional)"),
			),
			mcp.WithString("limit",
				mcp.Description("Maximum number of messages to return (optional)"),
			),
		),
		listInboxMessagesHandler(api, log),
	)

	log.Info("registered MCP tools", zap.Int("count", 10))
}

func listSessionsHandler(api *client.Client, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := api.ListSessions(ctx)
		if err != nil {
			log.Error("failed to list sessions", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list sessions: %v", err)), nil
		}

		formatted, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(formatted)), nil
	}
}

func createSessionHandler(api *client.Client, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agentProfile, err := req.RequireString("agent_profile")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		provider := req.GetString("provider", "")
		sessionName := req.GetString("session_name", "")

		result, err := api.CreateSession(ctx, agentProfile, provider, sessionName)
		if err != nil {
			log.Error("failed to create session", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to create session: %v", err)), nil
		}

		formatted, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(formatted)), nil
	}
}

func listTerminalsHandler(api *client.Client, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		session := req.GetString("session", "")

		var (
			result *client.TerminalsResponse
			err    error
		)
		if session != "" {
			result, err = api.ListSessionTerminals(ctx, session)
		} else {
			result, err = api.ListTerminals(ctx)
		}
		if err != nil {
			log.Error("failed to list terminals", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list terminals: %v", err)), nil
		}

		formatted, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(formatted)), nil
	}
}

func getTerminalHandler(api *client.Client, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		terminalID, err := req.RequireString("terminal_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		term, err := api.GetTerminal(ctx, terminalID)
		if err != nil {
			log.Error("failed to get terminal", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get terminal: %v", err)), nil
		}

		formatted, _ := json.MarshalIndent(term, "", "  ")
		return mcp.NewToolResultText(string(formatted)), nil
	}
}

func getTerminalOutputHandler(api *client.Client, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		terminalID, err := req.RequireString("terminal_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		mode := req.GetString("mode", "")

		result, err := api.GetOutput(ctx, terminalID, mode)
		if err != nil {
			log.Error("failed to get terminal output", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get terminal output: %v", err)), nil
		}

		return mcp.NewToolResultText(result.Output), nil
	}
}

func getTerminalStatusHandler(api *client.Client, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		terminalID, err := req.RequireString("terminal_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := api.GetStatus(ctx, terminalID)
		if err != nil {
			log.Error("failed to get terminal status", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get terminal status: %v", err)), nil
		}

		formatted, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(formatted)), nil
	}
}

func sendInputHandler(api *client.Client, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		terminalID, err := req.RequireString("terminal_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if err := api.SendInput(ctx, terminalID, message); err != nil {
			log.Error("failed to send input", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to send input: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Input sent to terminal %s", terminalID)), nil
	}
}

func deleteTerminalHandler(api *client.Client, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		terminalID, err := req.RequireString("terminal_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if err := api.DeleteTerminal(ctx, terminalID); err != nil {
			log.Error("failed to delete terminal", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to delete terminal: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Terminal %s destroyed", terminalID)), nil
	}
}

func sendInboxMessageHandler(api *client.Client, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		terminalID, err := req.RequireString("terminal_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		senderID, err := req.RequireString("sender_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		msg, err := api.SendInboxMessage(ctx, terminalID, senderID, message)
		if err != nil {
			log.Error("failed to send inbox message", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to send inbox message: %v", err)), nil
		}

		formatted, _ := json.MarshalIndent(msg, "", "  ")
		return mcp.NewToolResultText(string(formatted)), nil
	}
}

func listInboxMessagesHandler(api *client.Client, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		terminalID, err := req.RequireString("terminal_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		status := req.GetString("status", "")

		limit := 0
		if raw := req.GetString("limit", ""); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil {
				return mcp.NewToolResultError("limit must be an integer"), nil
			}
		}

		result, err := api.ListInboxMessages(ctx, terminalID, status, limit)
		if err != nil {
			log.Error("failed to list inbox messages", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list inbox messages: %v", err)), nil
		}

		formatted, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(formatted)), nil
	}
}
