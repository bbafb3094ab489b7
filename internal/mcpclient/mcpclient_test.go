package mcpclient

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

func TestConfigPath(t *testing.T) {
	home := "/fakehome"

	t.Run("cursor", func(t *testing.T) {
		got, err := ConfigPath(Cursor, home)
		if err != nil {
			t.Fatal(err)
		}
		if got != filepath.Join(home, ".cursor", "mcp.json") {
			t.Fatalf("unexpected path: %s", got)
		}
	})

	t.Run("claude-desktop", func(t *testing.T) {
		if runtime.GOOS != "linux" {
			t.Skip("linux layout")
		}
		got, err := ConfigPath(ClaudeDesktop, home)
		if err != nil {
			t.Fatal(err)
		}
		if got != filepath.Join(home, ".config", "Claude", "claude_desktop_config.json") {
			t.Fatalf("unexpected path: %s", got)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := ConfigPath(Client("nope"), home)
		if err == nil {
			t.Fatal("expected error for unknown client")
		}
	})
}

func TestValidClient(t *testing.T) {
	for _, c := range AllClients() {
		if !ValidClient(string(c)) {
			t.Errorf("%s should be valid", c)
		}
	}
	if ValidClient("notepad") {
		t.Error("notepad should not be valid")
	}
}

func TestBuildServerEntry(t *testing.T) {
	tests := []struct {
		name string
		opts EntryOptions
		args []string
	}{
		{name: "stdio", args: []string{"serve", "--transport", "stdio"}},
		{
			name: "pinned config",
			opts: EntryOptions{ConfigPath: "/etc/mcpvisio.toml"},
			args: []string{"serve", "--transport", "stdio", "--config", "/etc/mcpvisio.toml"},
		},
		{
			name: "relay backend",
			opts: EntryOptions{RelayURL: "http://winhost:8051"},
			args: []string{"serve", "--transport", "stdio", "--backend", "relay", "--relay-url", "http://winhost:8051"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := BuildServerEntry(tt.opts)
			if e.Command == "" || e.URL != "" {
				t.Fatalf("entry = %+v", e)
			}
			if !reflect.DeepEqual(e.Args, tt.args) {
				t.Fatalf("args = %v, want %v", e.Args, tt.args)
			}
		})
	}

	e := BuildServerEntry(EntryOptions{URL: "http://localhost:8050/mcp", RelayURL: "ignored"})
	if e.URL != "http://localhost:8050/mcp" || e.Command != "" || len(e.Args) != 0 {
		t.Fatalf("url entry = %+v", e)
	}
}

func readServers(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatal(err)
	}
	servers, _ := data["mcpServers"].(map[string]interface{})
	return servers
}

func TestInstallFreshFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "nested", "config.json")

	entry := BuildServerEntry(EntryOptions{})
	result, err := Install(cfgPath, entry)
	if err != nil {
		t.Fatal(err)
	}
	if result != Installed {
		t.Fatalf("result = %s, want installed", result)
	}

	servers := readServers(t, cfgPath)
	visio, ok := servers[ServerKey].(map[string]interface{})
	if !ok {
		t.Fatalf("missing %q entry: %v", ServerKey, servers)
	}
	if visio["command"] != entry.Command {
		t.Errorf("command = %v", visio["command"])
	}
	if _, hasURL := visio["url"]; hasURL {
		t.Error("stdio entry should not carry a url")
	}
}

func TestInstallPreservesOtherServers(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	existing := `{"theme":"dark","mcpServers":{"other":{"command":"other-server","args":["--flag"]}}}`
	if err := os.WriteFile(cfgPath, []byte(existing), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Install(cfgPath, BuildServerEntry(EntryOptions{})); err != nil {
		t.Fatal(err)
	}

	servers := readServers(t, cfgPath)
	if _, ok := servers["other"]; !ok {
		t.Error("other server entry was dropped")
	}
	if _, ok := servers[ServerKey]; !ok {
		t.Error("our entry is missing")
	}

	info, err := os.Stat(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600 kept", info.Mode().Perm())
	}
}

func TestInstallIsIdempotentAndUpdates(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	entry := BuildServerEntry(EntryOptions{})

	if _, err := Install(cfgPath, entry); err != nil {
		t.Fatal(err)
	}
	result, err := Install(cfgPath, entry)
	if err != nil {
		t.Fatal(err)
	}
	if result != AlreadyInstalled {
		t.Fatalf("second install = %s", result)
	}

	result, err = Install(cfgPath, BuildServerEntry(EntryOptions{URL: "http://localhost:8050/mcp"}))
	if err != nil {
		t.Fatal(err)
	}
	if result != Updated {
		t.Fatalf("changed install = %s", result)
	}

	st, err := Status(Cursor, cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Installed || st.Entry == nil || st.Entry.URL != "http://localhost:8050/mcp" {
		t.Fatalf("status = %+v", st)
	}
}

func TestRemove(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")

	removed, err := Remove(cfgPath)
	if err != nil || removed {
		t.Fatalf("remove on missing file = %v, %v", removed, err)
	}

	if _, err := Install(cfgPath, BuildServerEntry(EntryOptions{})); err != nil {
		t.Fatal(err)
	}
	removed, err = Remove(cfgPath)
	if err != nil || !removed {
		t.Fatalf("remove = %v, %v", removed, err)
	}

	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatal(err)
	}
	if _, ok := data["mcpServers"]; ok {
		t.Errorf("empty mcpServers should be dropped: %s", raw)
	}
}

func TestStatus(t *testing.T) {
	dir := t.TempDir()

	st, err := Status(Cursor, filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	if st.Exists || st.Installed {
		t.Fatalf("status = %+v", st)
	}

	broken := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(broken, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Status(Cursor, broken); err == nil {
		t.Error("expected a parse error")
	}
	if _, err := Install(broken, BuildServerEntry(EntryOptions{})); err == nil {
		t.Error("install must not overwrite an unparseable config")
	}
}
