package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mcp-visio/mcpvisio/internal/config"
)

// useTestGlobals points the CLI at a config in a temp dir, captures output
// and restores every global afterwards.
func useTestGlobals(t *testing.T, asJSON bool) (*bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()

	prevConfig, prevResolved, prevCfg := configPath, resolvedConfigPath, cfg
	prevJSON, prevStdout, prevStderr, prevStdin := jsonOutput, stdout, stderr, stdin
	t.Cleanup(func() {
		configPath, resolvedConfigPath, cfg = prevConfig, prevResolved, prevCfg
		jsonOutput, stdout, stderr, stdin = prevJSON, prevStdout, prevStderr, prevStdin
	})

	configPath = filepath.Join(dir, "config.toml")
	resolvedConfigPath = configPath
	c := config.Default()
	c.Logging.Level = "error"
	cfg = c

	buf := &bytes.Buffer{}
	stdout = buf
	stderr = io.Discard
	jsonOutput = asJSON
	return buf, dir
}

type testEnvelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *ErrorInfo      `json:"error"`
	Meta  *Meta           `json:"meta"`
}

func decodeEnvelope(t *testing.T, buf *bytes.Buffer) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("output is not a JSON envelope: %v\n%s", err, buf.String())
	}
	return env
}

func TestConfigInitCreatesConfigFile(t *testing.T) {
	buf, _ := useTestGlobals(t, true)
	configPath = filepath.Join(filepath.Dir(configPath), "nested", "config.toml")

	if err := configInitCmd.RunE(configInitCmd, []string{}); err != nil {
		t.Fatalf("configInitCmd.RunE returned error: %v", err)
	}

	env := decodeEnvelope(t, buf)
	var data struct {
		ConfigPath string `json:"config_path"`
		Created    bool   `json:"created"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if !env.OK || !data.Created || data.ConfigPath != configPath {
		t.Fatalf("unexpected response: %s", buf.String())
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read created config: %v", err)
	}
	if !strings.Contains(string(content), "# mcpvisio configuration") {
		t.Fatalf("expected default config header in file, got:\n%s", string(content))
	}

	buf.Reset()
	if err := configInitCmd.RunE(configInitCmd, []string{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"created": false`) {
		t.Errorf("second init should not create: %s", buf.String())
	}
}

func TestConfigInitForceReplacesFile(t *testing.T) {
	buf, _ := useTestGlobals(t, false)
	if err := os.WriteFile(configPath, []byte("[server]\nport = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	configInitForce = true
	t.Cleanup(func() { configInitForce = false })
	if err := configInitCmd.RunE(configInitCmd, []string{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Created") {
		t.Errorf("output = %q", buf.String())
	}

	loaded, err := config.LoadFrom(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 8050 {
		t.Errorf("port = %d, want the default", loaded.Server.Port)
	}
}

func TestConfigShowReportsMissingFile(t *testing.T) {
	buf, dir := useTestGlobals(t, true)
	t.Setenv("PORT", "9100")

	if err := runConfigShow(configCmd, nil); err != nil {
		t.Fatal(err)
	}
	env := decodeEnvelope(t, buf)
	var data struct {
		Exists      bool   `json:"exists"`
		JournalPath string `json:"journal_path"`
		Server      struct {
			Addr string `json:"addr"`
		} `json:"server"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Exists {
		t.Error("config should not exist yet")
	}
	if data.JournalPath != filepath.Join(dir, "journal.db") {
		t.Errorf("journal path = %q", data.JournalPath)
	}
	if data.Server.Addr != "0.0.0.0:9100" {
		t.Errorf("addr = %q, want the PORT override", data.Server.Addr)
	}
}

func TestConfigShowRejectsBrokenFile(t *testing.T) {
	buf, _ := useTestGlobals(t, true)
	if err := os.WriteFile(configPath, []byte("[server\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := runConfigShow(configCmd, nil); err != nil {
		t.Fatal(err)
	}
	env := decodeEnvelope(t, buf)
	if env.OK || env.Error == nil || env.Error.Code != ErrConfigInvalid {
		t.Errorf("unexpected response: %s", buf.String())
	}
}

func TestConfigPathPrintsResolvedPath(t *testing.T) {
	buf, _ := useTestGlobals(t, false)
	if err := configPathCmd.RunE(configPathCmd, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != configPath {
		t.Errorf("path = %q, want %q", buf.String(), configPath)
	}
}

func TestLoadConfigAppliesEnvAndLogLevel(t *testing.T) {
	useTestGlobals(t, false)
	prevLevel := logLevelFlag
	t.Cleanup(func() { logLevelFlag = prevLevel })

	if err := os.WriteFile(configPath, []byte("[server]\nbackend = \"relay\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VISIO_SERVICE_HOST", "winhost")
	logLevelFlag = "warn"

	loaded, path, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if path != configPath {
		t.Errorf("path = %q", path)
	}
	if loaded.Server.Backend != config.BackendRelay || loaded.Server.RelayURL != "http://winhost:8051" {
		t.Errorf("server = %+v", loaded.Server)
	}
	if loaded.Logging.Level != "warn" {
		t.Errorf("level = %q", loaded.Logging.Level)
	}

	t.Setenv("TRANSPORT", "pigeon")
	if _, _, err := loadConfig(); err == nil {
		t.Error("expected a validation error for an unknown transport")
	}
}
