package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcp-visio/mcpvisio/internal/audit"
	"github.com/mcp-visio/mcpvisio/internal/journal"
	"github.com/mcp-visio/mcpvisio/internal/ui"
)

var (
	historyLimit    int
	historyMethods  string
	historyStats    bool
	historySince    time.Duration
	historyPrune    time.Duration
	historyAudit    bool
	historyDocument string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded RPC calls and diagram changes",
	Long: `Show the call journal written by 'mcpvisio serve', or the audit log of
diagram changes.

Examples:
  mcpvisio history                              # last 20 calls
  mcpvisio history --method modify_visio_diagram,save_diagram
  mcpvisio history --stats --since 168h         # per-method totals for a week
  mcpvisio history --prune 720h                 # drop calls older than 30 days
  mcpvisio history --audit --document flow.vsdx # changes to one document`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	c := getConfig()
	if historyAudit {
		return showAudit(audit.New(c.AuditPath(getConfigPath()), c.Audit.Enabled))
	}

	if !c.Journal.Enabled {
		return handleError(ErrJournalUnavailable, errors.New("the call journal is disabled"), "Set [journal] enabled = true in the config")
	}
	e, err := newEnv(c, getConfigPath(), envOptions{journal: true})
	if err != nil {
		return handleError(ErrConfigInvalid, err, "")
	}
	defer e.Close()
	if e.journal == nil {
		return handleError(ErrJournalUnavailable, fmt.Errorf("cannot open journal %s", c.JournalPath(getConfigPath())), "")
	}

	switch {
	case historyPrune > 0:
		return pruneJournal(e.journal, historyPrune)
	case historyStats:
		return showStats(e.journal, historySince)
	default:
		return showCalls(e.journal, historyLimit, journal.ParseMethods(historyMethods))
	}
}

func showCalls(j *journal.Journal, limit int, methods []string) error {
	calls, err := j.Recent(limit, methods...)
	if err != nil {
		return handleError(ErrJournalUnavailable, err, "")
	}
	if isJSONOutput() {
		outputSuccess(map[string]interface{}{"calls": calls}, &Meta{Count: len(calls)})
		return nil
	}
	if len(calls) == 0 {
		printf("%s\n", ui.Hint("No calls recorded."))
		return nil
	}

	rows := make([][]string, 0, len(calls))
	for _, call := range calls {
		status := ui.Outcome(call.Outcome == journal.OutcomeSuccess) + " " + call.Outcome
		if call.RPCCode != 0 {
			status += " " + strconv.Itoa(call.RPCCode)
		}
		rows = append(rows, []string{
			call.Time.Local().Format("2006-01-02 15:04:05"),
			call.Method,
			status,
			call.Duration.Round(time.Millisecond).String(),
			call.Message,
		})
	}
	width := ui.DisplayFor(stdout).TermWidth
	printf("%s %s\n\n", ui.Header("Recent calls"), ui.Hint(ui.Count(len(calls), "call", "calls")))
	printf("%s\n", ui.Grid([]string{"TIME", "METHOD", "OUTCOME", "TOOK", "MESSAGE"}, rows, width, 3))
	return nil
}

func showStats(j *journal.Journal, since time.Duration) error {
	var from time.Time
	if since > 0 {
		from = time.Now().Add(-since)
	}
	stats, err := j.Stats(from)
	if err != nil {
		return handleError(ErrJournalUnavailable, err, "")
	}
	if isJSONOutput() {
		outputSuccess(map[string]interface{}{"methods": stats}, &Meta{Count: len(stats)})
		return nil
	}
	if len(stats) == 0 {
		printf("%s\n", ui.Hint("No calls recorded."))
		return nil
	}

	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Method,
			strconv.Itoa(s.Calls),
			strconv.Itoa(s.Errors),
			s.Avg.Round(time.Millisecond).String(),
		})
	}
	width := ui.DisplayFor(stdout).TermWidth
	printf("%s\n\n", ui.Header("Calls by method"))
	printf("%s\n", ui.Grid([]string{"METHOD", "CALLS", "ERRORS", "AVG"}, rows, width, 1, 2, 3))
	return nil
}

func pruneJournal(j *journal.Journal, olderThan time.Duration) error {
	removed, err := j.Prune(time.Now().Add(-olderThan))
	if err != nil {
		return handleError(ErrJournalUnavailable, err, "")
	}
	if isJSONOutput() {
		outputSuccess(map[string]interface{}{"removed": removed}, nil)
		return nil
	}
	printf("%s\n", ui.Successf("Removed %d calls older than %s", removed, olderThan))
	return nil
}

func showAudit(a *audit.Logger) error {
	if !a.Enabled() {
		return handleError(ErrAuditUnavailable, errors.New("the audit log is disabled"), "Set [audit] enabled = true in the config")
	}

	var (
		entries []audit.Entry
		err     error
	)
	if historyDocument != "" {
		entries, err = a.ReadForDocument(historyDocument)
	} else {
		entries, err = a.Read()
	}
	if err != nil {
		return handleError(ErrAuditUnavailable, err, "")
	}
	if historyLimit > 0 && len(entries) > historyLimit {
		entries = entries[len(entries)-historyLimit:]
	}

	if isJSONOutput() {
		outputSuccess(map[string]interface{}{"entries": entries}, &Meta{Count: len(entries)})
		return nil
	}
	if len(entries) == 0 {
		printf("%s\n", ui.Hint("No changes recorded."))
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		page := ""
		if entry.Page > 0 {
			page = strconv.Itoa(entry.Page)
		}
		rows = append(rows, []string{
			entry.Timestamp.Local().Format("2006-01-02 15:04:05"),
			entry.Operation,
			entry.Document,
			page,
		})
	}
	width := ui.DisplayFor(stdout).TermWidth
	printf("%s %s\n\n", ui.Header("Diagram changes"), ui.FilePath(a.Path()))
	printf("%s\n", ui.Grid([]string{"TIME", "OPERATION", "DOCUMENT", "PAGE"}, rows, width, 3))
	return nil
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries")
	historyCmd.Flags().StringVarP(&historyMethods, "method", "m", "", "Comma-separated methods to show")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "Show per-method totals")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "With --stats, only count calls this recent (e.g. 24h)")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "Delete calls older than this (e.g. 720h)")
	historyCmd.Flags().BoolVar(&historyAudit, "audit", false, "Show the audit log of diagram changes")
	historyCmd.Flags().StringVar(&historyDocument, "document", "", "With --audit, only show changes to this document")
	rootCmd.AddCommand(historyCmd)
}
