package profile

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/provider"
)

// ResolveProvider picks the provider kind for an agent profile. An explicit
// request wins, then the provider recorded in the profile's context file,
// then the preference saved at install time, then the default. The winning
// value must name a known provider kind.
func (m *Manager) ResolveProvider(explicit, profileName string) (provider.Kind, error) {
	selected := explicit
	if selected == "" {
		selected = m.ContextProvider(profileName)
	}
	if selected == "" {
		selected = m.InstalledProvider(profileName)
	}
	if selected == "" {
		return DefaultKind, nil
	}
	return provider.ParseKind(selected)
}

// ContextProvider returns the provider recorded in the profile's context
// file frontmatter, or "" when the file is absent or unreadable.
func (m *Manager) ContextProvider(profileName string) string {
	raw, err := os.ReadFile(m.paths.ContextPath(profileName))
	if err != nil {
		return ""
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		m.logger.Debug("failed to parse context frontmatter",
			zap.String("profile", profileName), zap.Error(err))
		return ""
	}
	return doc.Provider()
}

// InstalledProvider returns the provider preference recorded when the
// profile was installed, or "" when none is on file.
func (m *Manager) InstalledProvider(profileName string) string {
	return m.loadPreferences()[profileName]
}

// SetInstalledProvider records the provider a profile was installed for.
func (m *Manager) SetInstalledProvider(profileName string, kind provider.Kind) error {
	if err := os.MkdirAll(m.paths.ContextDir, 0o755); err != nil {
		return fmt.Errorf("failed to create context directory %s: %w", m.paths.ContextDir, err)
	}

	prefs := m.loadPreferences()
	prefs[profileName] = string(kind)

	raw, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode provider preferences: %w", err)
	}
	if err := os.WriteFile(m.paths.PrefsFile, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write provider preferences: %w", err)
	}
	return nil
}

// loadPreferences reads the preference file, treating a missing or corrupt
// file as empty so a damaged file never blocks installs or launches.
func (m *Manager) loadPreferences() map[string]string {
	prefs := map[string]string{}
	raw, err := os.ReadFile(m.paths.PrefsFile)
	if err != nil {
		return prefs
	}
	if err := json.Unmarshal(raw, &prefs); err != nil {
		m.logger.Warn("failed to parse provider preferences, starting fresh",
			zap.String("path", m.paths.PrefsFile), zap.Error(err))
		return map[string]string{}
	}
	return prefs
}
