// Package mcpclient manages the mcpvisio server entry in desktop MCP client
// config files.
package mcpclient

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mcp-visio/mcpvisio/internal/atomicfile"
)

// ServerKey is the name of our entry under "mcpServers".
const ServerKey = "visio"

// Client identifies an MCP client application.
type Client string

const (
	ClaudeDesktop Client = "claude-desktop"
	Cursor        Client = "cursor"
	Windsurf      Client = "windsurf"
)

// AllClients returns all supported MCP clients.
func AllClients() []Client {
	return []Client{ClaudeDesktop, Cursor, Windsurf}
}

// ValidClient returns true if c is a recognized client name.
func ValidClient(c string) bool {
	for _, known := range AllClients() {
		if Client(c) == known {
			return true
		}
	}
	return false
}

// ServerEntry is one "mcpServers" entry. Command entries launch the stdio
// transport; URL entries point at a running SSE server.
type ServerEntry struct {
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
	URL     string   `json:"url,omitempty"`
}

// ClientStatus reports whether mcpvisio is configured for a given client.
type ClientStatus struct {
	Client     Client       `json:"client"`
	ConfigPath string       `json:"config_path"`
	Exists     bool         `json:"exists"`
	Installed  bool         `json:"installed"`
	Entry      *ServerEntry `json:"entry,omitempty"`
}

// ConfigPath returns the config file path for the given client.
// homeDir can be overridden for testing; pass "" to use os.UserHomeDir.
func ConfigPath(client Client, homeDir string) (string, error) {
	if homeDir == "" {
		var err error
		homeDir, err = os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
	}

	switch client {
	case ClaudeDesktop:
		switch runtime.GOOS {
		case "darwin":
			return filepath.Join(homeDir, "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
		case "windows":
			if appData := os.Getenv("APPDATA"); appData != "" {
				return filepath.Join(appData, "Claude", "claude_desktop_config.json"), nil
			}
			return filepath.Join(homeDir, "AppData", "Roaming", "Claude", "claude_desktop_config.json"), nil
		}
		return filepath.Join(homeDir, ".config", "Claude", "claude_desktop_config.json"), nil
	case Cursor:
		return filepath.Join(homeDir, ".cursor", "mcp.json"), nil
	case Windsurf:
		return filepath.Join(homeDir, ".codeium", "windsurf", "mcp_config.json"), nil
	default:
		return "", fmt.Errorf("unknown client: %s", client)
	}
}

// ResolveCommand returns the absolute path to the running binary.
// Falls back to "mcpvisio" if the path cannot be determined.
func ResolveCommand() string {
	exe, err := os.Executable()
	if err != nil {
		return "mcpvisio"
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return exe
	}
	return resolved
}

// EntryOptions selects how the client reaches the server.
type EntryOptions struct {
	// URL points the client at a running SSE server instead of launching
	// one over stdio.
	URL string
	// ConfigPath pins the --config flag.
	ConfigPath string
	// RelayURL launches the stdio server with the relay backend.
	RelayURL string
}

// BuildServerEntry creates the entry for the given options.
func BuildServerEntry(opts EntryOptions) ServerEntry {
	if opts.URL != "" {
		return ServerEntry{URL: opts.URL}
	}
	args := []string{"serve", "--transport", "stdio"}
	if opts.ConfigPath != "" {
		args = append(args, "--config", opts.ConfigPath)
	}
	if opts.RelayURL != "" {
		args = append(args, "--backend", "relay", "--relay-url", opts.RelayURL)
	}
	return ServerEntry{
		Command: ResolveCommand(),
		Args:    args,
	}
}

// InstallResult describes what happened during an install.
type InstallResult int

const (
	Installed InstallResult = iota
	Updated
	AlreadyInstalled
)

func (r InstallResult) String() string {
	switch r {
	case Installed:
		return "installed"
	case Updated:
		return "updated"
	case AlreadyInstalled:
		return "already_installed"
	default:
		return "unknown"
	}
}

// Install adds or updates our entry in the client config. Other servers and
// unrelated keys are preserved.
func Install(configPath string, entry ServerEntry) (InstallResult, error) {
	data, err := readConfig(configPath)
	if err != nil {
		return 0, err
	}

	servers, ok := serversOf(data)
	if !ok {
		servers = map[string]interface{}{}
		data["mcpServers"] = servers
	}

	existing, present := decodeEntry(servers[ServerKey])
	if present && entriesEqual(existing, entry) {
		return AlreadyInstalled, nil
	}

	result := Installed
	if present {
		result = Updated
	}
	servers[ServerKey] = entry

	return result, writeConfig(configPath, data)
}

// Remove deletes our entry from the client config.
// Returns true if it was present and removed.
func Remove(configPath string) (bool, error) {
	data, err := readConfig(configPath)
	if err != nil {
		return false, err
	}
	servers, ok := serversOf(data)
	if !ok {
		return false, nil
	}
	if _, present := servers[ServerKey]; !present {
		return false, nil
	}

	delete(servers, ServerKey)
	if len(servers) == 0 {
		delete(data, "mcpServers")
	}
	return true, writeConfig(configPath, data)
}

// Status checks whether mcpvisio is configured in the given client config.
func Status(client Client, configPath string) (*ClientStatus, error) {
	cs := &ClientStatus{
		Client:     client,
		ConfigPath: configPath,
	}

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return cs, nil
		}
		return nil, fmt.Errorf("stat config: %w", err)
	}
	cs.Exists = true

	data, err := readConfig(configPath)
	if err != nil {
		return nil, err
	}
	servers, ok := serversOf(data)
	if !ok {
		return cs, nil
	}
	if entry, present := decodeEntry(servers[ServerKey]); present {
		cs.Installed = true
		cs.Entry = &entry
	}
	return cs, nil
}

// readConfig reads an existing JSON config or returns an empty map.
func readConfig(path string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	return data, nil
}

func serversOf(data map[string]interface{}) (map[string]interface{}, bool) {
	m, ok := data["mcpServers"].(map[string]interface{})
	return m, ok
}

// decodeEntry converts a generic JSON value into a ServerEntry.
func decodeEntry(v interface{}) (ServerEntry, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return ServerEntry{}, false
	}
	var e ServerEntry
	e.Command, _ = m["command"].(string)
	e.URL, _ = m["url"].(string)
	if args, ok := m["args"].([]interface{}); ok {
		for _, a := range args {
			if s, ok := a.(string); ok {
				e.Args = append(e.Args, s)
			}
		}
	}
	return e, true
}

func entriesEqual(a, b ServerEntry) bool {
	if a.Command != b.Command || a.URL != b.URL || len(a.Args) != len(b.Args) {
		return false
	}
	for i := range a.Args {
		if a.Args[i] != b.Args[i] {
			return false
		}
	}
	return true
}

func writeConfig(path string, data map[string]interface{}) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	out = append(out, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	return atomicfile.WriteFile(path, out, 0)
}
