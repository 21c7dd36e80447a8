package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/provider"
)

// Manager installs agent profiles and answers provider resolution queries.
type Manager struct {
	paths  Paths
	client *http.Client
	logger *logger.Logger
}

// NewManager creates a profile manager rooted at the given paths.
func NewManager(paths Paths, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		paths:  paths,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: log.WithFields(zap.String("component", "profile-manager")),
	}
}

// Paths returns the directory layout the manager operates on.
func (m *Manager) Paths() Paths {
	return m.paths
}

// Install brings an agent profile into service for the given provider. The
// source is a URL or file path to a .md profile document, or the bare name
// of a profile already in the local store. Install publishes the context
// file with the provider recorded in its frontmatter, remembers the
// provider preference, and for Amazon Q and Kiro writes the native agent
// JSON config.
func (m *Manager) Install(ctx context.Context, source string, kind provider.Kind) (*InstallResult, error) {
	name, err := m.materialize(ctx, source)
	if err != nil {
		return nil, err
	}

	doc, err := LoadDocument(m.paths.StorePath(name))
	if err != nil {
		return nil, err
	}
	prof, err := doc.Profile(name)
	if err != nil {
		return nil, err
	}

	contextFile, err := m.writeContext(doc, prof.Name, kind)
	if err != nil {
		return nil, err
	}
	if err := m.SetInstalledProvider(prof.Name, kind); err != nil {
		return nil, err
	}

	result := &InstallResult{Name: prof.Name, ContextFile: contextFile}

	switch kind {
	case provider.KindQCLI:
		result.AgentFile, err = m.writeAgentConfig(m.paths.QAgentsDir, prof, contextFile)
	case provider.KindKiroCLI:
		result.AgentFile, err = m.writeAgentConfig(m.paths.KiroAgentsDir, prof, contextFile)
	}
	if err != nil {
		return nil, err
	}

	m.logger.Info("agent profile installed",
		zap.String("profile", prof.Name),
		zap.String("provider", string(kind)),
		zap.String("source", source))
	return result, nil
}

// materialize ensures the profile document exists in the local store and
// returns its name. URLs are downloaded, file paths copied, bare names
// looked up.
func (m *Manager) materialize(ctx context.Context, source string) (string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return m.downloadToStore(ctx, source)
	}
	if _, err := os.Stat(source); err == nil {
		return m.copyToStore(source)
	}
	if _, err := os.Stat(m.paths.StorePath(source)); err != nil {
		return "", fmt.Errorf("%w: %s", ErrProfileNotFound, source)
	}
	return source, nil
}

func (m *Manager) downloadToStore(ctx context.Context, url string) (string, error) {
	name := path.Base(url)
	if !strings.HasSuffix(name, ".md") {
		return "", fmt.Errorf("%w: URL must point to a .md document: %s", ErrInvalidSource, url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download agent profile: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download agent profile: %s returned %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to download agent profile: %w", err)
	}

	if err := m.storeDocument(name, data); err != nil {
		return "", err
	}
	return strings.TrimSuffix(name, ".md"), nil
}

func (m *Manager) copyToStore(source string) (string, error) {
	name := filepath.Base(source)
	if !strings.HasSuffix(name, ".md") {
		return "", fmt.Errorf("%w: expected a .md document: %s", ErrInvalidSource, source)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("failed to read agent profile %s: %w", source, err)
	}
	if err := m.storeDocument(name, data); err != nil {
		return "", err
	}
	return strings.TrimSuffix(name, ".md"), nil
}

func (m *Manager) storeDocument(filename string, data []byte) error {
	if err := os.MkdirAll(m.paths.StoreDir, 0o755); err != nil {
		return fmt.Errorf("failed to create profile store %s: %w", m.paths.StoreDir, err)
	}
	dest := filepath.Join(m.paths.StoreDir, filename)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("failed to store agent profile %s: %w", filename, err)
	}
	return nil
}

// writeContext publishes the profile document into the context directory
// with the provider recorded in its frontmatter. Other metadata keys
// survive the rewrite.
func (m *Manager) writeContext(doc *Document, name string, kind provider.Kind) (string, error) {
	dest := m.paths.ContextPath(name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create context directory %s: %w", filepath.Dir(dest), err)
	}

	doc.Meta["provider"] = string(kind)
	out, err := doc.Encode()
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(dest, out, 0o644); err != nil {
		return "", fmt.Errorf("failed to write agent context %s: %w", dest, err)
	}
	return dest, nil
}

// writeAgentConfig emits the native agent JSON for providers that discover
// agents from a config directory. Tools default to everything, allowed
// tools to the builtin set plus one grant per MCP server.
func (m *Manager) writeAgentConfig(dir string, prof *AgentProfile, contextFile string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create agent config directory %s: %w", dir, err)
	}

	tools := prof.Tools
	if tools == nil {
		tools = []string{"*"}
	}
	allowed := prof.AllowedTools
	if allowed == nil {
		allowed = []string{"@builtin", "fs_*", "execute_bash"}
		servers := make([]string, 0, len(prof.MCPServers))
		for server := range prof.MCPServers {
			servers = append(servers, server)
		}
		sort.Strings(servers)
		for _, server := range servers {
			allowed = append(allowed, "@"+server)
		}
	}

	absContext, err := filepath.Abs(contextFile)
	if err != nil {
		return "", fmt.Errorf("failed to resolve context path %s: %w", contextFile, err)
	}

	cfg := AgentConfig{
		Name:          prof.Name,
		Description:   prof.Description,
		Prompt:        prof.Prompt,
		Tools:         tools,
		AllowedTools:  allowed,
		Resources:     []string{"file://" + absContext},
		MCPServers:    prof.MCPServers,
		ToolAliases:   prof.ToolAliases,
		ToolsSettings: prof.ToolsSettings,
		Hooks:         prof.Hooks,
		Model:         prof.Model,
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode agent config for %s: %w", prof.Name, err)
	}

	// Profile names may be namespaced with slashes; flatten for the filename.
	filename := strings.ReplaceAll(prof.Name, "/", "__") + ".json"
	dest := filepath.Join(dir, filename)
	if err := os.WriteFile(dest, raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to write agent config %s: %w", dest, err)
	}
	return dest, nil
}
