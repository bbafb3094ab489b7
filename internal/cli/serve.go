package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/mcp-visio/mcpvisio/internal/config"
	"github.com/mcp-visio/mcpvisio/internal/mcp"
)

var (
	serveTransport string
	serveHost      string
	servePort      int
	serveBackend   string
	serveRelayURL  string
	serveNoJournal bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the diagram tools as an MCP server",
	Long: `Run MCP-Visio as an MCP (Model Context Protocol) server.

Transports:
  stdio   line-delimited JSON-RPC 2.0 on stdin/stdout
  sse     POST /mcp for requests, GET /mcp for the event stream,
          GET /health and GET /metrics

Backends:
  local   the diagram engine runs in this process
  relay   every call is forwarded to a relay host ('mcpvisio relay')

Examples:
  mcpvisio serve                          # SSE on 0.0.0.0:8050, local engine
  mcpvisio serve --transport stdio        # for desktop agent hosts
  mcpvisio serve --backend relay --relay-url http://winhost:8051

For use with an MCP desktop client, add to its config:
  {
    "mcpServers": {
      "visio": {
        "command": "mcpvisio",
        "args": ["serve", "--transport", "stdio"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	c := getConfig()
	applyServeFlags(cmd.Flags(), c)
	if err := c.Validate(); err != nil {
		return handleError(ErrInvalidInput, err, "")
	}

	// Nothing but protocol goes to stdout; logs go to stderr.
	e, err := newEnv(c, getConfigPath(), envOptions{journal: !serveNoJournal, metrics: true})
	if err != nil {
		return handleError(ErrConfigInvalid, err, "")
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e.log.Info("serve.start",
		zap.String("transport", c.Server.Transport),
		zap.String("backend", c.Server.Backend),
		zap.Bool("journal", e.journal != nil),
	)

	if c.Server.Backend == config.BackendRelay {
		probeRelay(ctx, e)
	}

	if c.Server.Transport == config.TransportStdio {
		server := e.rpcServer(mcp.WithIO(os.Stdin, os.Stdout))
		if err := server.Run(ctx); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	}

	server := e.rpcServer()
	if err := server.ListenAndServe(ctx, c.Server.Addr()); err != nil {
		return handleError(ErrServerFailed, err, "")
	}
	return nil
}

// commandContext returns the command's context, or a background context
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// applyServeFlags copies explicitly set flags over the loaded config.
func applyServeFlags(flags *pflag.FlagSet, c *config.Config) {
	if flags.Changed("transport") {
		c.Server.Transport = serveTransport
	}
	if flags.Changed("host") {
		c.Server.Host = serveHost
	}
	if flags.Changed("port") {
		c.Server.Port = servePort
	}
	if flags.Changed("backend") {
		c.Server.Backend = serveBackend
	}
	if flags.Changed("relay-url") {
		c.Server.RelayURL = serveRelayURL
	}
}

// probeRelay logs whether the relay host answers. The server starts either
// way; calls reconnect on demand.
func probeRelay(ctx context.Context, e *env) {
	client := e.relayClient()
	if err := client.Connect(ctx); err != nil {
		e.log.Warn("serve.relay_unreachable", zap.String("url", client.BaseURL()), zap.Error(err))
		return
	}
	e.log.Info("serve.relay_connected", zap.String("url", client.BaseURL()))
}

func init() {
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "Transport: stdio or sse")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host for the sse transport")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port for the sse transport")
	serveCmd.Flags().StringVar(&serveBackend, "backend", "", "Backend: local or relay")
	serveCmd.Flags().StringVar(&serveRelayURL, "relay-url", "", "Relay host URL for the relay backend")
	serveCmd.Flags().BoolVar(&serveNoJournal, "no-journal", false, "Do not record calls in the journal")
	rootCmd.AddCommand(serveCmd)
}
