// Package journal records every dispatched RPC call in a SQLite database so
// past sessions can be inspected with `mcpvisio history`.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mcp-visio/mcpvisio/internal/sqlutil"
)

// SchemaVersion is bumped when the calls table changes shape.
const SchemaVersion = 1

// Outcomes.
const (
	OutcomeSuccess  = "success"   // result with status success
	OutcomeError    = "error"     // result with status error
	OutcomeRPCError = "rpc_error" // JSON-RPC error envelope
)

// Call is one dispatched request.
type Call struct {
	ID        int64         `json:"id"`
	Time      time.Time     `json:"ts"`
	Method    string        `json:"method"`
	RequestID string        `json:"request_id,omitempty"`
	Duration  time.Duration `json:"duration"`
	Outcome   string        `json:"outcome"`
	RPCCode   int           `json:"rpc_code,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// MethodStats aggregates calls for one method.
type MethodStats struct {
	Method string        `json:"method"`
	Calls  int           `json:"calls"`
	Errors int           `json:"errors"`
	Avg    time.Duration `json:"avg"`
}

// Journal is the SQLite-backed call log. It is safe for concurrent use.
type Journal struct {
	db  *sql.DB
	log *zap.Logger
	mu  sync.Mutex
}

// Open opens or creates the journal at path.
func Open(path string, log *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return newJournal(db, log)
}

// OpenInMemory opens an in-memory journal (for testing).
func OpenInMemory(log *zap.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newJournal(db, log)
}

func newJournal(db *sql.DB, log *zap.Logger) (*Journal, error) {
	if log == nil {
		log = zap.NewNop()
	}
	j := &Journal{db: db, log: log.Named("journal")}
	if err := j.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initialize() error {
	schema := `
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;

		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,            -- unix milliseconds
			method TEXT NOT NULL,
			request_id TEXT,                -- raw JSON-RPC id
			duration_ms INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			rpc_code INTEGER,
			message TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_calls_ts ON calls(ts);
		CREATE INDEX IF NOT EXISTS idx_calls_method ON calls(method, ts);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	if _, err := j.db.Exec(
		`INSERT INTO meta (key, value) VALUES ('version', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprint(SchemaVersion),
	); err != nil {
		return fmt.Errorf("failed to record journal version: %w", err)
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends c. A zero Time is stamped with now.
func (j *Journal) Record(c Call) error {
	if c.Time.IsZero() {
		c.Time = time.Now()
	}
	var code any
	if c.RPCCode != 0 {
		code = c.RPCCode
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(
		`INSERT INTO calls (ts, method, request_id, duration_ms, outcome, rpc_code, message) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sqlutil.UnixMilli(c.Time), c.Method, c.RequestID, c.Duration.Milliseconds(), c.Outcome, code, c.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to record call: %w", err)
	}
	return nil
}

// Recent returns up to limit calls, newest first. When methods is
// non-empty only those methods are returned.
func (j *Journal) Recent(limit int, methods ...string) ([]Call, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, ts, method, COALESCE(request_id, ''), duration_ms, outcome, COALESCE(rpc_code, 0), COALESCE(message, '') FROM calls`
	var args []any
	if len(methods) > 0 {
		ph, inArgs := sqlutil.InClause(methods)
		query += " WHERE method IN (" + ph + ")"
		args = append(args, inArgs...)
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	return sqlutil.ScanRows(rows, func(rows *sql.Rows) (Call, error) {
		var c Call
		var ts, ms int64
		if err := rows.Scan(&c.ID, &ts, &c.Method, &c.RequestID, &ms, &c.Outcome, &c.RPCCode, &c.Message); err != nil {
			return c, err
		}
		c.Time = sqlutil.FromUnixMilli(ts)
		c.Duration = time.Duration(ms) * time.Millisecond
		return c, nil
	})
}

// Stats aggregates calls per method since the given time, busiest first.
func (j *Journal) Stats(since time.Time) ([]MethodStats, error) {
	rows, err := j.db.Query(`
		SELECT method,
		       COUNT(*),
		       SUM(CASE WHEN outcome != ? THEN 1 ELSE 0 END),
		       AVG(duration_ms)
		FROM calls
		WHERE ts >= ?
		GROUP BY method
		ORDER BY COUNT(*) DESC, method`,
		OutcomeSuccess, sqlutil.UnixMilli(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query call stats: %w", err)
	}
	return sqlutil.ScanRows(rows, func(rows *sql.Rows) (MethodStats, error) {
		var s MethodStats
		var avg float64
		if err := rows.Scan(&s.Method, &s.Calls, &s.Errors, &avg); err != nil {
			return s, err
		}
		s.Avg = time.Duration(avg * float64(time.Millisecond))
		return s, nil
	})
}

// Prune deletes calls older than before and returns how many were removed.
func (j *Journal) Prune(before time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	res, err := j.db.Exec(`DELETE FROM calls WHERE ts < ?`, sqlutil.UnixMilli(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		j.log.Info("journal.pruned", zap.Int64("rows", n), zap.Time("before", before))
	}
	return n, nil
}

// ParseMethods splits a comma-separated method filter.
func ParseMethods(s string) []string {
	var out []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}
