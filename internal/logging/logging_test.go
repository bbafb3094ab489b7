package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/mcp-visio/mcpvisio/internal/config"
)

func TestConsoleLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LoggingConfig{Level: "warn", Format: "console"}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("rpc.request", zap.String("method", "ping"))
	log.Warn("relay.call_failed", zap.String("route", "/health"))

	out := buf.String()
	if strings.Contains(out, "rpc.request") {
		t.Errorf("info entry written at warn level:\n%s", out)
	}
	if !strings.Contains(out, "relay.call_failed") || !strings.Contains(out, "WARN") {
		t.Errorf("warn entry missing:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("colors used for a non-terminal writer:\n%q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LoggingConfig{Format: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Named("ops").Info("ops.audit_failed", zap.Int("shape_id", 3))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "ops.audit_failed" || entry["logger"] != "mcpvisio.ops" || entry["shape_id"] != float64(3) {
		t.Errorf("entry = %v", entry)
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mcpvisio.log")
	log, err := New(config.LoggingConfig{Level: "debug", File: path, MaxSizeMB: 1}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("journal.pruned", zap.Int64("rows", 2))
	Sync(log)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"journal.pruned"`) {
		t.Errorf("file log = %s", data)
	}
}

func TestInvalidLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "chatty"}, &bytes.Buffer{}); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
