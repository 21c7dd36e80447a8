// Package profile manages agent profile documents: markdown files with a
// YAML frontmatter block that describe an agent persona. Installing a
// profile copies it into the local store, publishes a context file with the
// chosen provider recorded in its frontmatter, and for providers with a
// native agent format (Amazon Q, Kiro) emits the matching agent JSON config.
package profile

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/agentmux/agentmux/internal/provider"
)

var (
	// ErrProfileNotFound indicates a bare profile name that is not present
	// in the local store.
	ErrProfileNotFound = errors.New("agent profile not found")

	// ErrInvalidSource indicates an install source that does not point at a
	// markdown profile document.
	ErrInvalidSource = errors.New("invalid agent profile source")
)

// DefaultKind is the provider used when neither the request, the context
// file, nor the install preference names one.
const DefaultKind = provider.KindQCLI

// AgentProfile is the typed view of a profile document's frontmatter. The
// markdown body below the frontmatter is the agent's context document.
type AgentProfile struct {
	Name          string                     `yaml:"name,omitempty"`
	Description   string                     `yaml:"description,omitempty"`
	Prompt        string                     `yaml:"prompt,omitempty"`
	Tools         []string                   `yaml:"tools,omitempty"`
	AllowedTools  []string                   `yaml:"allowedTools,omitempty"`
	MCPServers    map[string]MCPServerConfig `yaml:"mcpServers,omitempty"`
	ToolAliases   map[string]string          `yaml:"toolAliases,omitempty"`
	ToolsSettings map[string]interface{}     `yaml:"toolsSettings,omitempty"`
	Hooks         map[string]interface{}     `yaml:"hooks,omitempty"`
	Model         string                     `yaml:"model,omitempty"`
}

// MCPServerConfig describes one MCP server entry in a profile.
type MCPServerConfig struct {
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Timeout int               `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// AgentConfig is the JSON document written for providers with a native
// agent directory. Amazon Q and Kiro share the same schema.
type AgentConfig struct {
	Name          string                     `json:"name"`
	Description   string                     `json:"description,omitempty"`
	Prompt        string                     `json:"prompt,omitempty"`
	Tools         []string                   `json:"tools"`
	AllowedTools  []string                   `json:"allowedTools"`
	Resources     []string                   `json:"resources"`
	MCPServers    map[string]MCPServerConfig `json:"mcpServers,omitempty"`
	ToolAliases   map[string]string          `json:"toolAliases,omitempty"`
	ToolsSettings map[string]interface{}     `json:"toolsSettings,omitempty"`
	Hooks         map[string]interface{}     `json:"hooks,omitempty"`
	Model         string                     `json:"model,omitempty"`
}

// InstallResult reports where an install placed its artifacts.
type InstallResult struct {
	Name        string `json:"name"`
	ContextFile string `json:"context_file"`
	AgentFile   string `json:"agent_file,omitempty"`
}

// Paths holds the directories the profile manager reads and writes.
type Paths struct {
	// StoreDir holds installed profile documents by name.
	StoreDir string
	// ContextDir holds published context files with the provider recorded.
	ContextDir string
	// PrefsFile is the JSON map of profile name to installed provider.
	PrefsFile string
	// QAgentsDir is where Amazon Q CLI discovers agent configs.
	QAgentsDir string
	// KiroAgentsDir is where Kiro CLI discovers agent configs.
	KiroAgentsDir string
}

// DefaultPaths returns the standard layout: profiles and context files under
// the agentmux home, agent configs under the user's Q and Kiro directories.
func DefaultPaths(agentmuxHome string) Paths {
	paths := Paths{
		StoreDir:   filepath.Join(agentmuxHome, "agents"),
		ContextDir: filepath.Join(agentmuxHome, "agent-context"),
		PrefsFile:  filepath.Join(agentmuxHome, "agent-context", "provider-preferences.json"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths.QAgentsDir = filepath.Join(home, ".aws", "amazonq", "cli-agents")
		paths.KiroAgentsDir = filepath.Join(home, ".kiro", "agents")
	}
	return paths
}

// StorePath returns the store location for a profile name.
func (p Paths) StorePath(name string) string {
	return filepath.Join(p.StoreDir, name+".md")
}

// ContextPath returns the published context file location for a profile name.
func (p Paths) ContextPath(name string) string {
	return filepath.Join(p.ContextDir, name+".md")
}
