// Package audit keeps an append-only JSON-lines record of diagram changes:
// shape and connector edits, document creation, saves and exports.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry is one audit record.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	Operation string                 `json:"op"` // add_shape, delete_connection, create, save, export, ...
	Document  string                 `json:"document,omitempty"`
	Page      int                    `json:"page,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Logger appends entries to a file. A disabled Logger drops everything.
type Logger struct {
	path    string
	enabled bool
	mu      sync.Mutex
}

// New returns a logger writing to path. If enabled is false or path is
// empty the logger is a no-op.
func New(path string, enabled bool) *Logger {
	if !enabled || path == "" {
		return &Logger{}
	}
	return &Logger{path: path, enabled: true}
}

// Enabled reports whether entries are written.
func (l *Logger) Enabled() bool {
	return l.enabled
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.path
}

// Log appends an entry, stamping it with the current time if unset.
func (l *Logger) Log(entry Entry) error {
	if !l.enabled {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Read returns all entries. Malformed lines are skipped.
func (l *Logger) Read() ([]Entry, error) {
	if !l.enabled {
		return nil, nil
	}
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}

// ReadForDocument returns the entries recorded against document.
func (l *Logger) ReadForDocument(document string) ([]Entry, error) {
	all, err := l.Read()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range all {
		if strings.EqualFold(e.Document, document) {
			out = append(out, e)
		}
	}
	return out, nil
}
