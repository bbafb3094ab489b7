// Package cli implements the command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcp-visio/mcpvisio/internal/config"
	"github.com/mcp-visio/mcpvisio/internal/ui"
)

var (
	// Global flags
	configPath   string
	logLevelFlag string

	// Resolved values
	resolvedConfigPath string
	cfg                *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mcpvisio",
	Short: "MCP-Visio - diagram tools for LLM agents",
	Long: `MCP-Visio exposes diagram analysis and editing to LLM agents as JSON-RPC tools.

Agents can inspect shapes, connectors and text, add and connect shapes, create
and save documents, and export pages. Run the server locally with the built-in
diagram engine, or point it at a relay host that owns the engine.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "completion", "help", "version", "config":
			return nil
		}
		// config subcommands load the file themselves so a broken file can
		// still be located and replaced.
		if cmd.Parent() != nil && cmd.Parent().Name() == "config" {
			return nil
		}

		var err error
		cfg, resolvedConfigPath, err = loadConfig()
		if err != nil {
			return handleError(ErrConfigInvalid, err, "Run 'mcpvisio config path' to locate the file")
		}
		ui.ConfigureTheme(cfg.UI.Accent)
		ui.ConfigureMarkdownCodeTheme(cfg.UI.CodeTheme)
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (for agent/script use)")
}

// getConfig returns the loaded config.
func getConfig() *config.Config {
	if cfg == nil {
		return config.Default()
	}
	return cfg
}

// getConfigPath returns the resolved config path.
func getConfigPath() string {
	if resolvedConfigPath == "" {
		return config.ResolveConfigPath(configPath)
	}
	return resolvedConfigPath
}

// loadConfig reads the config file (defaults when missing), applies the
// environment and the --log-level flag, and validates the result.
func loadConfig() (*config.Config, string, error) {
	path := config.ResolveConfigPath(configPath)
	loaded, err := config.LoadPath(path)
	if err != nil {
		return nil, path, err
	}
	if err := loaded.ApplyEnv(os.Getenv); err != nil {
		return nil, path, err
	}
	if logLevelFlag != "" {
		loaded.Logging.Level = logLevelFlag
	}
	if err := loaded.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return loaded, path, nil
}
