package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/internal/provider"
)

func writeContextFile(t *testing.T, m *Manager, name, content string) {
	t.Helper()
	path := m.Paths().ContextPath(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolveProviderPrecedence(t *testing.T) {
	m := newTestManager(t)

	// Nothing on file: the default wins.
	kind, err := m.ResolveProvider("", "ghost")
	require.NoError(t, err)
	assert.Equal(t, provider.KindQCLI, kind)

	// An install preference beats the default.
	require.NoError(t, m.SetInstalledProvider("ghost", provider.KindDroid))
	kind, err = m.ResolveProvider("", "ghost")
	require.NoError(t, err)
	assert.Equal(t, provider.KindDroid, kind)

	// A context file beats the preference.
	writeContextFile(t, m, "ghost", "---\nprovider: codex\n---\n\nbody\n")
	kind, err = m.ResolveProvider("", "ghost")
	require.NoError(t, err)
	assert.Equal(t, provider.KindCodex, kind)

	// An explicit request beats everything.
	kind, err = m.ResolveProvider("claude_code", "ghost")
	require.NoError(t, err)
	assert.Equal(t, provider.KindClaudeCode, kind)
}

func TestResolveProviderUnknownKind(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ResolveProvider("gpt_shell", "ghost")
	require.ErrorIs(t, err, provider.ErrUnknownKind)

	// A bad value in the context file is an error too, not a silent fallback.
	writeContextFile(t, m, "typo", "---\nprovider: qcli\n---\n\nbody\n")
	_, err = m.ResolveProvider("", "typo")
	require.ErrorIs(t, err, provider.ErrUnknownKind)
}

func TestResolveProviderAfterInstall(t *testing.T) {
	m := newTestManager(t)
	seedStoreProfile(t, m, "reviewer", reviewerProfile)

	_, err := m.Install(context.Background(), "reviewer", provider.KindOpenAutoGLM)
	require.NoError(t, err)

	kind, err := m.ResolveProvider("", "reviewer")
	require.NoError(t, err)
	assert.Equal(t, provider.KindOpenAutoGLM, kind)
}

func TestContextProviderToleratesDamage(t *testing.T) {
	m := newTestManager(t)

	// Missing file.
	assert.Empty(t, m.ContextProvider("absent"))

	// Unparseable frontmatter.
	writeContextFile(t, m, "broken", "---\nprovider: [unclosed\n---\n\nbody\n")
	assert.Empty(t, m.ContextProvider("broken"))

	// No provider key.
	writeContextFile(t, m, "plain", "---\nname: plain\n---\n\nbody\n")
	assert.Empty(t, m.ContextProvider("plain"))
}

func TestPreferencesTolerateCorruptFile(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, os.MkdirAll(m.Paths().ContextDir, 0o755))
	require.NoError(t, os.WriteFile(m.Paths().PrefsFile, []byte("{not json"), 0o644))

	assert.Empty(t, m.InstalledProvider("anything"))

	// Writing a new preference recovers the file.
	require.NoError(t, m.SetInstalledProvider("fresh", provider.KindClaudeCode))
	assert.Equal(t, "claude_code", m.InstalledProvider("fresh"))
}

func TestPreferencesSurviveAcrossProfiles(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.SetInstalledProvider("alpha", provider.KindQCLI))
	require.NoError(t, m.SetInstalledProvider("beta", provider.KindKiroCLI))

	assert.Equal(t, "q_cli", m.InstalledProvider("alpha"))
	assert.Equal(t, "kiro_cli", m.InstalledProvider("beta"))
}
