package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcp-visio/mcpvisio/internal/config"
	"github.com/mcp-visio/mcpvisio/internal/ui"
)

var configInitForce bool

type configContext struct {
	cfg          *config.Config
	configPath   string
	configExists bool
}

// loadConfigContext loads the config file, allowing it to be missing. The
// environment is applied so `config show` prints what commands will use.
func loadConfigContext() (*configContext, error) {
	path := config.ResolveConfigPath(configPath)
	_, statErr := os.Stat(path)
	if statErr != nil && !os.IsNotExist(statErr) {
		return nil, statErr
	}

	loaded, err := config.LoadPath(path)
	if err != nil {
		return nil, err
	}
	if err := loaded.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return &configContext{cfg: loaded, configPath: path, configExists: statErr == nil}, nil
}

func configData(ctx *configContext) map[string]interface{} {
	c := ctx.cfg
	return map[string]interface{}{
		"config_path":  ctx.configPath,
		"exists":       ctx.configExists,
		"journal_path": c.JournalPath(ctx.configPath),
		"audit_path":   c.AuditPath(ctx.configPath),
		"server": map[string]interface{}{
			"transport": c.Server.Transport,
			"addr":      c.Server.Addr(),
			"backend":   c.Server.Backend,
			"relay_url": c.Server.RelayURL,
		},
		"relay": map[string]interface{}{
			"listen": c.Relay.Listen,
			"timeouts": map[string]string{
				"probe":     c.Relay.Timeouts.Probe.String(),
				"query":     c.Relay.Timeouts.Query.String(),
				"operation": c.Relay.Timeouts.Operation.String(),
				"persist":   c.Relay.Timeouts.Persist.String(),
			},
		},
		"engine": map[string]interface{}{
			"path_style":    c.Engine.PathStyle,
			"default_drive": c.Engine.DefaultDrive,
			"work_dir":      c.Engine.WorkDir,
			"stencil_dir":   c.Engine.StencilDir,
			"template_dir":  c.Engine.TemplateDir,
		},
		"logging": map[string]interface{}{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"file":   c.Logging.File,
		},
		"journal_enabled": c.Journal.Enabled,
		"audit_enabled":   c.Audit.Enabled,
		"textgen": map[string]interface{}{
			"url":     c.TextGen.URL,
			"model":   c.TextGen.Model,
			"timeout": c.TextGen.Timeout.String(),
		},
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	ctx, err := loadConfigContext()
	if err != nil {
		return handleError(ErrConfigInvalid, err, "")
	}

	if isJSONOutput() {
		outputSuccess(configData(ctx), nil)
		return nil
	}

	c := ctx.cfg
	if ctx.configExists {
		printf("%s %s\n\n", ui.Header("config:"), ui.FilePath(ctx.configPath))
	} else {
		printf("%s %s\n", ui.Header("config:"), ui.Hint(ctx.configPath+" (not created, using defaults)"))
		printf("%s\n\n", ui.Hint("Run 'mcpvisio config init' to create it."))
	}

	t := ui.NewTable(2)
	t.AddRow("server.transport", c.Server.Transport)
	t.AddRow("server.addr", c.Server.Addr())
	t.AddRow("server.backend", c.Server.Backend)
	t.AddRow("server.relay_url", c.Server.RelayURL)
	t.AddRow("relay.listen", c.Relay.Listen)
	t.AddRow("relay.timeouts", fmt.Sprintf("probe %s, query %s, operation %s, persist %s",
		c.Relay.Timeouts.Probe, c.Relay.Timeouts.Query, c.Relay.Timeouts.Operation, c.Relay.Timeouts.Persist))
	for _, kv := range [][2]string{
		{"engine.path_style", c.Engine.PathStyle},
		{"engine.default_drive", c.Engine.DefaultDrive},
		{"engine.work_dir", c.Engine.WorkDir},
		{"engine.stencil_dir", c.Engine.StencilDir},
		{"engine.template_dir", c.Engine.TemplateDir},
		{"logging.file", c.Logging.File},
	} {
		if kv[1] != "" {
			t.AddRow(kv[0], kv[1])
		}
	}
	t.AddRow("logging.level", c.Logging.Level)
	t.AddRow("journal", enabledPath(c.Journal.Enabled, c.JournalPath(ctx.configPath)))
	t.AddRow("audit", enabledPath(c.Audit.Enabled, c.AuditPath(ctx.configPath)))
	t.AddRow("textgen", fmt.Sprintf("%s (%s, %s)", c.TextGen.URL, c.TextGen.Model, c.TextGen.Timeout))
	printf("%s", t.String())
	return nil
}

func enabledPath(enabled bool, path string) string {
	if !enabled {
		return ui.Hint("disabled")
	}
	return path
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage config.toml settings",
	Long: `Manage the mcpvisio config.toml.

Environment variables (TRANSPORT, PORT, VISIO_SERVICE_HOST, ...) override the
file, and command flags override both.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config.toml if missing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		targetPath := config.ResolveConfigPath(configPath)
		if configInitForce {
			if err := os.Remove(targetPath); err != nil && !os.IsNotExist(err) {
				return handleError(ErrConfigInvalid, err, "")
			}
		}

		created, err := config.CreateDefault(targetPath)
		if err != nil {
			return handleError(ErrConfigInvalid, err, "")
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"config_path": targetPath,
				"created":     created,
			}, nil)
			return nil
		}

		if !created {
			printf("%s\n", ui.Warning("Config already exists: "+ui.FilePath(targetPath)))
			printf("%s\n", ui.Hint("Use --force to replace it with the defaults."))
			return nil
		}
		printf("%s\n", ui.Success("Created "+ui.FilePath(targetPath)))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ResolveConfigPath(configPath)
		if isJSONOutput() {
			_, err := os.Stat(path)
			outputSuccess(map[string]interface{}{"config_path": path, "exists": err == nil}, nil)
			return nil
		}
		printf("%s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config with the defaults")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	})
	rootCmd.AddCommand(configCmd)
}
