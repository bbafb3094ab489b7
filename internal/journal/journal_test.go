package journal

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenInMemory(zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openTest(t)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	calls := []Call{
		{Time: base, Method: "ping", RequestID: "1", Duration: time.Millisecond, Outcome: OutcomeSuccess},
		{Time: base.Add(time.Second), Method: "modify_visio_diagram", RequestID: `"abc"`, Duration: 40 * time.Millisecond, Outcome: OutcomeError, Message: "Shape not found with ID: 9"},
		{Time: base.Add(2 * time.Second), Method: "nope", RequestID: "3", Outcome: OutcomeRPCError, RPCCode: -32601},
	}
	for _, c := range calls {
		if err := j.Record(c); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(got))
	}
	if got[0].Method != "nope" || got[0].RPCCode != -32601 {
		t.Errorf("newest call = %+v", got[0])
	}
	if got[1].Duration != 40*time.Millisecond || got[1].RequestID != `"abc"` {
		t.Errorf("modify call = %+v", got[1])
	}
	if !got[2].Time.Equal(base) {
		t.Errorf("time = %v, want %v", got[2].Time, base)
	}

	filtered, err := j.Recent(10, "ping", "modify_visio_diagram")
	if err != nil {
		t.Fatalf("Recent filtered: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("expected 2 filtered calls, got %d", len(filtered))
	}

	limited, _ := j.Recent(1)
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d", len(limited))
	}
}

func TestStatsAndPrune(t *testing.T) {
	j := openTest(t)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, outcome := range []string{OutcomeSuccess, OutcomeSuccess, OutcomeError} {
		if err := j.Record(Call{Time: base.Add(time.Duration(i) * time.Minute), Method: "analyze_visio_diagram", Duration: 10 * time.Millisecond, Outcome: outcome}); err != nil {
			t.Fatal(err)
		}
	}
	if err := j.Record(Call{Time: base.Add(-time.Hour), Method: "ping", Outcome: OutcomeSuccess}); err != nil {
		t.Fatal(err)
	}

	stats, err := j.Stats(base)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected stats for one method, got %+v", stats)
	}
	s := stats[0]
	if s.Calls != 3 || s.Errors != 1 || s.Avg != 10*time.Millisecond {
		t.Errorf("stats = %+v", s)
	}

	n, err := j.Prune(base)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}
}

func TestOpenFileReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "journal.db")
	j, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.Record(Call{Method: "ping", Outcome: OutcomeSuccess}); err != nil {
		t.Fatal(err)
	}
	j.Close()

	j, err = Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	got, err := j.Recent(5)
	if err != nil || len(got) != 1 {
		t.Fatalf("Recent after reopen = %v, %v", got, err)
	}
}

func TestParseMethods(t *testing.T) {
	got := ParseMethods(" ping, ,save_diagram ")
	if len(got) != 2 || got[0] != "ping" || got[1] != "save_diagram" {
		t.Errorf("ParseMethods = %v", got)
	}
}
