// Package main is the agentmux binary: a control plane for interactive CLI
// agents (Amazon Q, Kiro, Claude Code, Codex, Droid, Open-AutoGLM) running
// in tmux. One binary serves the HTTP API, launches sessions, installs
// agent profiles, and proxies the API as MCP tools.
package main

func main() {
	Execute()
}
