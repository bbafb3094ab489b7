package cli

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mcp-visio/mcpvisio/internal/audit"
	"github.com/mcp-visio/mcpvisio/internal/config"
	"github.com/mcp-visio/mcpvisio/internal/diagram/local"
	"github.com/mcp-visio/mcpvisio/internal/journal"
	"github.com/mcp-visio/mcpvisio/internal/logging"
	"github.com/mcp-visio/mcpvisio/internal/mcp"
	"github.com/mcp-visio/mcpvisio/internal/metrics"
	"github.com/mcp-visio/mcpvisio/internal/ops"
	"github.com/mcp-visio/mcpvisio/internal/relay"
	"github.com/mcp-visio/mcpvisio/internal/target"
)

// env holds the process-wide pieces a command wires together.
type env struct {
	cfg        *config.Config
	configPath string
	log        *zap.Logger
	metrics    *metrics.Metrics
	journal    *journal.Journal
	audit      *audit.Logger
}

type envOptions struct {
	journal bool
	metrics bool
}

// newEnv builds the logger and the optional journal and metrics. A journal
// that cannot be opened is logged and skipped.
func newEnv(c *config.Config, path string, opts envOptions) (*env, error) {
	log, err := logging.New(c.Logging, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	e := &env{
		cfg:        c,
		configPath: path,
		log:        log,
		audit:      audit.New(c.AuditPath(path), c.Audit.Enabled),
	}
	if opts.metrics {
		e.metrics = metrics.New()
	}
	if opts.journal && c.Journal.Enabled {
		j, err := journal.Open(c.JournalPath(path), log)
		if err != nil {
			log.Warn("journal.unavailable", zap.Error(err))
		} else {
			e.journal = j
		}
	}
	return e, nil
}

// Close releases the journal and flushes the logger.
func (e *env) Close() {
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			e.log.Warn("journal.close_failed", zap.Error(err))
		}
	}
	logging.Sync(e.log)
}

// localService builds an engine in this process and the service over it.
func (e *env) localService() *ops.Service {
	engine := local.New(local.Options{
		StencilDir:  e.cfg.Engine.StencilDir,
		TemplateDir: e.cfg.Engine.TemplateDir,
		Logger:      e.log,
	})
	resolver := &target.Resolver{
		Engine:       engine,
		Style:        target.ParseStyle(e.cfg.Engine.PathStyle),
		DefaultDrive: e.cfg.Engine.DefaultDrive,
		WorkDir:      e.cfg.Engine.WorkDir,
	}
	return ops.New(resolver, ops.WithLogger(e.log), ops.WithAudit(e.audit))
}

// relayClient builds a client for the configured relay host.
func (e *env) relayClient() *relay.Client {
	t := e.cfg.Relay.Timeouts
	return relay.NewClient(e.cfg.Server.RelayURL,
		relay.WithTimeouts(relay.Timeouts{
			Probe:     t.Probe.Duration,
			Query:     t.Query.Duration,
			Operation: t.Operation.Duration,
			Persist:   t.Persist.Duration,
		}),
		relay.WithClientLogger(e.log),
		relay.WithClientMetrics(e.metrics),
	)
}

// backend returns the configured diagram backend.
func (e *env) backend() mcp.Backend {
	if e.cfg.Server.Backend == config.BackendRelay {
		return e.relayClient()
	}
	return e.localService()
}

// rpcServer builds the RPC server over the configured backend.
func (e *env) rpcServer(extra ...mcp.Option) *mcp.Server {
	opts := []mcp.Option{mcp.WithLogger(e.log), mcp.WithMetrics(e.metrics)}
	if e.journal != nil {
		opts = append(opts, mcp.WithJournal(e.journal))
	}
	return mcp.NewServer(e.backend(), append(opts, extra...)...)
}
