package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mcp-visio/mcpvisio/internal/relay"
)

var relayListen string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the diagram engine behind the relay HTTP API",
	Long: `Run the relay host: the process that owns the diagram engine.

An MCP server started with '--backend relay' forwards every tool call here.
Run the relay on the machine that holds the documents; run the MCP server
wherever the agent host can reach it.

Routes:
  GET  /health, /connect
  GET  /active-document, /available-stencils, /available-masters
  POST /analyze-diagram, /modify-diagram, /verify-connections,
       /create-diagram, /save-diagram, /get-shapes, /export-diagram
  GET  /metrics

Examples:
  mcpvisio relay
  mcpvisio relay --listen 127.0.0.1:9051`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := getConfig()
		if cmd.Flags().Changed("listen") {
			c.Relay.Listen = relayListen
		}

		e, err := newEnv(c, getConfigPath(), envOptions{metrics: true})
		if err != nil {
			return handleError(ErrConfigInvalid, err, "")
		}
		defer e.Close()

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server := relay.NewServer(e.localService(),
			relay.WithServerLogger(e.log),
			relay.WithServerMetrics(e.metrics),
		)
		e.log.Info("relay.start", zap.String("listen", c.Relay.Listen), zap.String("work_dir", c.Engine.WorkDir))
		if err := server.ListenAndServe(ctx, c.Relay.Listen); err != nil {
			return handleError(ErrServerFailed, err, "")
		}
		return nil
	},
}

func init() {
	relayCmd.Flags().StringVar(&relayListen, "listen", "", "Listen address (default from config, 0.0.0.0:8051)")
	rootCmd.AddCommand(relayCmd)
}
