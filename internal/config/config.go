// Package config handles mcpvisio configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the mcpvisio configuration file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Relay   RelayConfig   `toml:"relay"`
	Engine  EngineConfig  `toml:"engine"`
	Logging LoggingConfig `toml:"logging"`
	Journal JournalConfig `toml:"journal"`
	Audit   AuditConfig   `toml:"audit"`
	TextGen TextGenConfig `toml:"textgen"`
	UI      UIConfig      `toml:"ui"`
}

// Transports for the RPC server.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Backends for the RPC server.
const (
	BackendLocal = "local"
	BackendRelay = "relay"
)

// ServerConfig controls the agent-facing RPC server.
type ServerConfig struct {
	// Transport is "stdio" or "sse" (HTTP POST plus an SSE stream).
	Transport string `toml:"transport"`
	Host      string `toml:"host"`
	Port      int    `toml:"port"`

	// Backend is "local" to run the diagram engine in process or "relay" to
	// forward every call to RelayURL.
	Backend  string `toml:"backend"`
	RelayURL string `toml:"relay_url"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RelayConfig controls the relay host and the relay client's timeouts.
type RelayConfig struct {
	Listen   string         `toml:"listen"`
	Timeouts TimeoutsConfig `toml:"timeouts"`
}

// TimeoutsConfig bounds relay calls by class.
type TimeoutsConfig struct {
	Probe     Duration `toml:"probe"`
	Query     Duration `toml:"query"`
	Operation Duration `toml:"operation"`
	Persist   Duration `toml:"persist"`
}

// EngineConfig configures document resolution and the local engine.
type EngineConfig struct {
	// PathStyle is "windows", "posix" or empty for the host's style.
	PathStyle    string `toml:"path_style"`
	DefaultDrive string `toml:"default_drive"`
	WorkDir      string `toml:"work_dir"`
	StencilDir   string `toml:"stencil_dir"`
	TemplateDir  string `toml:"template_dir"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console | json
	// File enables a rotated JSON log in addition to stderr.
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// JournalConfig configures the sqlite call journal.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// AuditConfig configures the mutation audit log.
type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// TextGenConfig configures the text generation API used by `advise`.
type TextGenConfig struct {
	URL     string   `toml:"url"`
	Model   string   `toml:"model"`
	Timeout Duration `toml:"timeout"`
}

// UIConfig represents optional CLI theming preferences.
type UIConfig struct {
	// Accent is an optional accent color for CLI output and markdown rendering.
	// Supported values are ANSI color codes ("0" to "255") or hex colors ("#RRGGBB").
	Accent string `toml:"accent"`

	// CodeTheme sets the Glamour/Chroma theme used for rendered markdown code blocks.
	CodeTheme string `toml:"code_theme"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport: TransportSSE,
			Host:      "0.0.0.0",
			Port:      8050,
			Backend:   BackendLocal,
			RelayURL:  "http://localhost:8051",
		},
		Relay: RelayConfig{
			Listen: "0.0.0.0:8051",
			Timeouts: TimeoutsConfig{
				Probe:     Duration{5 * time.Second},
				Query:     Duration{10 * time.Second},
				Operation: Duration{30 * time.Second},
				Persist:   Duration{60 * time.Second},
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Journal: JournalConfig{Enabled: true},
		Audit:   AuditConfig{Enabled: true},
		TextGen: TextGenConfig{
			URL:     "http://localhost:11434",
			Model:   "llama3",
			Timeout: Duration{60 * time.Second},
		},
	}
}

// Load loads the configuration from the default location.
// Returns the default config if the file doesn't exist.
func Load() (*Config, error) {
	return LoadPath(DefaultPath())
}

// LoadPath loads path when it exists and the defaults otherwise.
func LoadPath(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return LoadFrom(path)
}

// LoadFrom loads the configuration from a specific path. Keys missing from
// the file keep their defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in config %s: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}

	relayHost, relayPort := getenv("VISIO_SERVICE_HOST"), getenv("VISIO_SERVICE_PORT")
	if relayHost != "" || relayPort != "" {
		if relayHost == "" {
			relayHost = "localhost"
		}
		if relayPort == "" {
			relayPort = "8051"
		}
		c.Server.RelayURL = "http://" + relayHost + ":" + relayPort
	}

	if v := getenv("VISIO_WORK_DIR"); v != "" {
		c.Engine.WorkDir = v
	}
	if v := getenv("OLLAMA_API_URL"); v != "" {
		c.TextGen.URL = v
	}
	if v := getenv("OLLAMA_MODEL"); v != "" {
		c.TextGen.Model = v
	}
	if strings.EqualFold(getenv("DEBUG"), "true") {
		c.Logging.Level = "debug"
	}
	return nil
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportStdio, TransportSSE, "http":
	default:
		return fmt.Errorf("server.transport must be %q or %q, got %q", TransportStdio, TransportSSE, c.Server.Transport)
	}
	switch c.Server.Backend {
	case BackendLocal, BackendRelay:
	default:
		return fmt.Errorf("server.backend must be %q or %q, got %q", BackendLocal, BackendRelay, c.Server.Backend)
	}
	switch strings.ToLower(c.Engine.PathStyle) {
	case "", "windows", "posix", "unix":
	default:
		return fmt.Errorf("engine.path_style must be windows or posix, got %q", c.Engine.PathStyle)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

// DefaultPath returns the default config file path.
// Checks ~/.config/mcpvisio/config.toml first (XDG style),
// then falls back to OS-specific location.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		xdgPath := filepath.Join(home, ".config", "mcpvisio", "config.toml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath
		}
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "mcpvisio", "config.toml")
	}

	return filepath.Join(".", "config.toml")
}

// ResolveConfigPath resolves the effective config path from an optional override.
func ResolveConfigPath(explicitConfigPath string) string {
	if strings.TrimSpace(explicitConfigPath) != "" {
		return explicitConfigPath
	}
	return DefaultPath()
}

// JournalPath returns the journal database path. Relative paths are taken
// relative to the config file's directory.
func (c *Config) JournalPath(configPath string) string {
	return resolveBeside(c.Journal.Path, "journal.db", configPath)
}

// AuditPath returns the audit log path, resolved like JournalPath.
func (c *Config) AuditPath(configPath string) string {
	return resolveBeside(c.Audit.Path, "audit.jsonl", configPath)
}

func resolveBeside(p, fallback, configPath string) string {
	dir := filepath.Dir(ResolveConfigPath(configPath))
	p = strings.TrimSpace(p)
	if p == "" {
		return filepath.Join(dir, fallback)
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, filepath.FromSlash(p))
}
