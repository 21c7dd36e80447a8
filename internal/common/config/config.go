// Package config provides configuration management for agentmux.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for agentmux.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Multiplexer MultiplexerConfig `mapstructure:"multiplexer"`
	Logs        LogsConfig        `mapstructure:"logs"`
	Inbox       InboxConfig       `mapstructure:"inbox"`
	Output      OutputConfig      `mapstructure:"output"`
	Provider    ProviderConfig    `mapstructure:"provider"`
	MCP         MCPConfig         `mapstructure:"mcp"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Home        string            `mapstructure:"home"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
}

// DatabaseConfig holds database connection configuration.
// The default driver is sqlite backed by a file under the agentmux home.
// Setting driver to "postgres" switches to the DSN-based pgx driver.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite, postgres
	Path     string `mapstructure:"path"`   // sqlite file path; empty means <home>/agentmux.db
	DSN      string `mapstructure:"dsn"`    // postgres connection string
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL means the in-memory event bus is used.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"client_id"`
	MaxReconnects int    `mapstructure:"max_reconnects"`
}

// MultiplexerConfig holds terminal multiplexer (tmux) configuration.
type MultiplexerConfig struct {
	Binary         string `mapstructure:"binary"`
	CommandTimeout int    `mapstructure:"command_timeout"` // in seconds, per tmux invocation
}

// LogsConfig holds terminal log capture configuration.
type LogsConfig struct {
	Dir         string `mapstructure:"dir"`          // empty means <home>/logs
	BufferLines int    `mapstructure:"buffer_lines"` // ring buffer capacity per terminal
}

// InboxConfig holds inbox scheduler configuration.
type InboxConfig struct {
	TailLines  int `mapstructure:"tail_lines"`  // scrollback lines inspected before delivery
	DebounceMs int `mapstructure:"debounce_ms"` // per-file debounce for log change events
}

// OutputConfig holds terminal output retrieval configuration.
type OutputConfig struct {
	RecentLines int `mapstructure:"recent_lines"` // lines returned by mode=recent
}

// ProviderConfig holds provider initialization configuration.
type ProviderConfig struct {
	ShellTimeout int    `mapstructure:"shell_timeout"` // in seconds, wait for shell prompt
	PollInterval int    `mapstructure:"poll_interval"` // in seconds, status poll cadence
	AutoGLMPath  string `mapstructure:"autoglm_path"`  // main.py of the Open-AutoGLM checkout
}

// MCPConfig holds MCP server configuration.
type MCPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	APIURL  string `mapstructure:"api_url"` // empty means http://localhost:<server.port>
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// CommandTimeoutDuration returns the multiplexer command timeout as a time.Duration.
func (m *MultiplexerConfig) CommandTimeoutDuration() time.Duration {
	return time.Duration(m.CommandTimeout) * time.Second
}

// DebounceDuration returns the log watcher debounce as a time.Duration.
func (i *InboxConfig) DebounceDuration() time.Duration {
	return time.Duration(i.DebounceMs) * time.Millisecond
}

// ShellTimeoutDuration returns the shell wait timeout as a time.Duration.
func (p *ProviderConfig) ShellTimeoutDuration() time.Duration {
	return time.Duration(p.ShellTimeout) * time.Second
}

// PollIntervalDuration returns the status poll interval as a time.Duration.
func (p *ProviderConfig) PollIntervalDuration() time.Duration {
	return time.Duration(p.PollInterval) * time.Second
}

// AutoGLMMain returns the Open-AutoGLM entry point with ~ expanded.
func (p *ProviderConfig) AutoGLMMain() string {
	return expandHome(p.AutoGLMPath)
}

// HomeDir returns the agentmux home directory, resolving the default
// ~/.agentmux when no explicit path is configured.
func (c *Config) HomeDir() string {
	if c.Home != "" {
		return expandHome(c.Home)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentmux"
	}
	return filepath.Join(home, ".agentmux")
}

// DatabasePath returns the sqlite database file path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return expandHome(c.Database.Path)
	}
	return filepath.Join(c.HomeDir(), "agentmux.db")
}

// LogsDir returns the directory holding per-terminal log files.
func (c *Config) LogsDir() string {
	if c.Logs.Dir != "" {
		return expandHome(c.Logs.Dir)
	}
	return filepath.Join(c.HomeDir(), "logs")
}

// APIBaseURL returns the base URL of the control API.
func (c *Config) APIBaseURL() string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}

// MCPAPIBaseURL returns the API URL the MCP server proxies to.
func (c *Config) MCPAPIBaseURL() string {
	if c.MCP.APIURL != "" {
		return c.MCP.APIURL
	}
	return c.APIBaseURL()
}

// expandHome replaces a leading ~ with the user home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	// Check if running in Kubernetes
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}

	// Check for explicit production environment
	if env := os.Getenv("AGENTMUX_ENV"); env == "production" || env == "prod" {
		return "json"
	}

	// Default to text format for terminal use (more readable than JSON)
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 9889)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	// Database defaults - sqlite file under the agentmux home
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.client_id", "agentmux")
	v.SetDefault("nats.max_reconnects", 10)

	// Multiplexer defaults
	v.SetDefault("multiplexer.binary", "tmux")
	v.SetDefault("multiplexer.command_timeout", 10)

	// Log capture defaults
	v.SetDefault("logs.dir", "")
	v.SetDefault("logs.buffer_lines", 100)

	// Inbox scheduler defaults
	v.SetDefault("inbox.tail_lines", 25)
	v.SetDefault("inbox.debounce_ms", 100)

	// Output defaults
	v.SetDefault("output.recent_lines", 50)

	// Provider defaults
	v.SetDefault("provider.shell_timeout", 10)
	v.SetDefault("provider.poll_interval", 1)
	v.SetDefault("provider.autoglm_path", "~/Workspace/work-assistant/projects/Open-AutoGLM/main.py")

	// MCP defaults - standalone `agentmux mcp` unless enabled in serve
	v.SetDefault("mcp.enabled", false)
	v.SetDefault("mcp.port", 9890)
	v.SetDefault("mcp.api_url", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.output_path", "stdout")

	// Home defaults - empty means ~/.agentmux
	v.SetDefault("home", "")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTMUX_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory,
// the agentmux home, or /etc/agentmux/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration like Load, searching the given directory
// ahead of the default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("AGENTMUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".agentmux"))
	}
	v.AddConfigPath("/etc/agentmux/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	// Server validation - always required
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	// Database validation
	switch strings.ToLower(cfg.Database.Driver) {
	case "sqlite":
		// Path is optional, defaults under the agentmux home
	case "postgres":
		if cfg.Database.DSN == "" {
			errs = append(errs, "database.dsn is required when database.driver is postgres")
		}
	default:
		errs = append(errs, "database.driver must be one of: sqlite, postgres")
	}

	// Multiplexer validation
	if cfg.Multiplexer.Binary == "" {
		errs = append(errs, "multiplexer.binary must not be empty")
	}
	if cfg.Multiplexer.CommandTimeout <= 0 {
		errs = append(errs, "multiplexer.command_timeout must be positive")
	}

	// Log capture validation
	if cfg.Logs.BufferLines <= 0 {
		errs = append(errs, "logs.buffer_lines must be positive")
	}

	// Inbox validation
	if cfg.Inbox.TailLines <= 0 {
		errs = append(errs, "inbox.tail_lines must be positive")
	}
	if cfg.Inbox.DebounceMs < 0 {
		errs = append(errs, "inbox.debounce_ms must not be negative")
	}

	// Output validation
	if cfg.Output.RecentLines <= 0 {
		errs = append(errs, "output.recent_lines must be positive")
	}

	// Provider validation
	if cfg.Provider.ShellTimeout <= 0 {
		errs = append(errs, "provider.shell_timeout must be positive")
	}
	if cfg.Provider.PollInterval <= 0 {
		errs = append(errs, "provider.poll_interval must be positive")
	}

	// MCP validation
	if cfg.MCP.Port <= 0 || cfg.MCP.Port > 65535 {
		errs = append(errs, "mcp.port must be between 1 and 65535")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
