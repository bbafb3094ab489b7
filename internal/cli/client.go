package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcp-visio/mcpvisio/internal/mcpclient"
	"github.com/mcp-visio/mcpvisio/internal/ui"
)

var (
	clientName      string
	clientURL       string
	clientRelayURL  string
	clientPinConfig bool

	// clientHome overrides the home directory in tests.
	clientHome string
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Register the server with desktop MCP clients",
	Long: `Add, remove or inspect the "visio" entry in an MCP client's config file.

Supported clients: ` + clientNames() + `

Examples:
  mcpvisio client install --client claude-desktop
  mcpvisio client install --client cursor --url http://localhost:8050/mcp
  mcpvisio client install --client claude-desktop --relay-url http://winhost:8051
  mcpvisio client status
  mcpvisio client remove --client cursor`,
}

func clientNames() string {
	names := make([]string, 0, len(mcpclient.AllClients()))
	for _, c := range mcpclient.AllClients() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

func selectedClientPath() (mcpclient.Client, string, error) {
	if !mcpclient.ValidClient(clientName) {
		return "", "", fmt.Errorf("unknown client %q (supported: %s)", clientName, clientNames())
	}
	c := mcpclient.Client(clientName)
	path, err := mcpclient.ConfigPath(c, clientHome)
	return c, path, err
}

var clientInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Add or update the server entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, path, err := selectedClientPath()
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}

		opts := mcpclient.EntryOptions{URL: clientURL, RelayURL: clientRelayURL}
		if clientPinConfig {
			opts.ConfigPath = getConfigPath()
		}
		entry := mcpclient.BuildServerEntry(opts)

		result, err := mcpclient.Install(path, entry)
		if err != nil {
			return handleError(ErrInvalidInput, err, "Fix or move the client config file and retry")
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"client":      client,
				"config_path": path,
				"result":      result.String(),
				"entry":       entry,
			}, nil)
			return nil
		}

		switch result {
		case mcpclient.AlreadyInstalled:
			printf("%s\n", ui.Info(fmt.Sprintf("%s is already configured in %s", mcpclient.ServerKey, ui.FilePath(path))))
		case mcpclient.Updated:
			printf("%s\n", ui.Successf("Updated %s in %s", mcpclient.ServerKey, ui.FilePath(path)))
		default:
			printf("%s\n", ui.Successf("Added %s to %s", mcpclient.ServerKey, ui.FilePath(path)))
		}
		printf("%s\n", ui.Hint("Restart "+string(client)+" to pick up the change."))
		return nil
	},
}

var clientRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the server entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, path, err := selectedClientPath()
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}
		removed, err := mcpclient.Remove(path)
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{"client": client, "config_path": path, "removed": removed}, nil)
			return nil
		}
		if !removed {
			printf("%s\n", ui.Info(fmt.Sprintf("%s is not configured in %s", mcpclient.ServerKey, ui.FilePath(path))))
			return nil
		}
		printf("%s\n", ui.Successf("Removed %s from %s", mcpclient.ServerKey, ui.FilePath(path)))
		return nil
	},
}

var clientStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the entry in every supported client",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var statuses []*mcpclient.ClientStatus
		for _, c := range mcpclient.AllClients() {
			path, err := mcpclient.ConfigPath(c, clientHome)
			if err != nil {
				return handleError(ErrInternal, err, "")
			}
			st, err := mcpclient.Status(c, path)
			if err != nil {
				return handleError(ErrInvalidInput, err, "")
			}
			statuses = append(statuses, st)
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{"clients": statuses}, &Meta{Count: len(statuses)})
			return nil
		}

		rows := make([][]string, 0, len(statuses))
		for _, st := range statuses {
			state := ui.Hint("no config")
			switch {
			case st.Installed && st.Entry.URL != "":
				state = ui.Outcome(true) + " " + st.Entry.URL
			case st.Installed:
				state = ui.Outcome(true) + " " + strings.Join(append([]string{st.Entry.Command}, st.Entry.Args...), " ")
			case st.Exists:
				state = ui.Outcome(false) + " not installed"
			}
			rows = append(rows, []string{string(st.Client), state, st.ConfigPath})
		}
		printf("%s\n", ui.Grid([]string{"CLIENT", "ENTRY", "CONFIG"}, rows, ui.DisplayFor(stdout).TermWidth))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{clientInstallCmd, clientRemoveCmd} {
		c.Flags().StringVar(&clientName, "client", string(mcpclient.ClaudeDesktop), "Client: "+clientNames())
	}
	clientInstallCmd.Flags().StringVar(&clientURL, "url", "", "Point the client at a running SSE server instead of launching one")
	clientInstallCmd.Flags().StringVar(&clientRelayURL, "relay-url", "", "Launch the server with the relay backend at this URL")
	clientInstallCmd.Flags().BoolVar(&clientPinConfig, "pin-config", false, "Pass the current --config path to the server")

	clientCmd.AddCommand(clientInstallCmd, clientRemoveCmd, clientStatusCmd)
	rootCmd.AddCommand(clientCmd)
}
