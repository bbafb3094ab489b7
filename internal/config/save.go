package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mcp-visio/mcpvisio/internal/atomicfile"
)

// SaveTo writes cfg to path atomically.
func SaveTo(path string, cfg *Config) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path is required")
	}
	if cfg == nil {
		cfg = Default()
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := atomicfile.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}

	return nil
}

const defaultConfig = `# mcpvisio configuration
#
# Environment variables override these values: TRANSPORT, HOST, PORT,
# VISIO_SERVICE_HOST, VISIO_SERVICE_PORT, VISIO_WORK_DIR, OLLAMA_API_URL,
# OLLAMA_MODEL and DEBUG=true.

[server]
# stdio: line-delimited JSON-RPC on stdin/stdout
# sse:   POST /mcp for requests, GET /mcp for the event stream
transport = "sse"
host = "0.0.0.0"
port = 8050
# local runs the diagram engine in this process; relay forwards every call
# to a relay host started with ` + "`mcpvisio relay`" + `.
backend = "local"
relay_url = "http://localhost:8051"

[relay]
listen = "0.0.0.0:8051"

[relay.timeouts]
probe = "5s"
query = "10s"
operation = "30s"
persist = "1m0s"

[engine]
# path_style = "windows"
# default_drive = "C:"
# work_dir = "/data/diagrams"
# stencil_dir = ""
# template_dir = ""

[logging]
level = "info"
format = "console"
# file = "/var/log/mcpvisio.log"
max_size_mb = 10
max_backups = 3
max_age_days = 28
compress = false

[journal]
enabled = true
# path = "journal.db"

[audit]
enabled = true
# path = "audit.jsonl"

[textgen]
url = "http://localhost:11434"
model = "llama3"
timeout = "1m0s"

# [ui]
# accent = "39"
# code_theme = "monokai"
`

// CreateDefault writes a commented default config to path if no file exists
// there. It reports whether a file was written.
func CreateDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := atomicfile.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}
