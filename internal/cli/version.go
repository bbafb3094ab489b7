package cli

import (
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcp-visio/mcpvisio/internal/buildinfo"
	"github.com/mcp-visio/mcpvisio/internal/mcp"
	"github.com/mcp-visio/mcpvisio/internal/ui"
)

type serverVersion struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Protocol string `json:"protocol"`
}

type versionInfo struct {
	Version  string        `json:"version"`
	Commit   string        `json:"commit,omitempty"`
	BuiltAt  string        `json:"built_at,omitempty"`
	Modified bool          `json:"modified"`
	Go       string        `json:"go"`
	Platform string        `json:"platform"`
	Server   serverVersion `json:"server"`
}

var readBuildInfo = debug.ReadBuildInfo

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the binary and protocol versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentVersionInfo()
		if isJSONOutput() {
			outputSuccess(info, nil)
			return nil
		}

		t := ui.NewTable(2)
		t.AddRow("  server", info.Server.Name+" "+info.Server.Version)
		t.AddRow("  protocol", info.Server.Protocol)
		if info.Commit != "" {
			commit := info.Commit
			if info.Modified {
				commit += " (modified)"
			}
			t.AddRow("  commit", commit)
		}
		if info.BuiltAt != "" {
			t.AddRow("  built", info.BuiltAt)
		}
		t.AddRow("  go", info.Go+" "+info.Platform)
		printf("%s\n%s", ui.Header("mcpvisio "+info.Version), t.String())
		return nil
	},
}

// currentVersionInfo prefers module build info and falls back to the
// values stamped in by the release build.
func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:  "devel",
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
		Server:   serverVersion{Name: mcp.ServerName, Version: mcp.ServerVersion, Protocol: mcp.ProtocolVersion},
	}

	if bi, ok := readBuildInfo(); ok && bi != nil {
		settings := make(map[string]string, len(bi.Settings))
		for _, s := range bi.Settings {
			settings[s.Key] = s.Value
		}
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			info.Version = v
		}
		if bi.GoVersion != "" {
			info.Go = bi.GoVersion
		}
		if settings["GOOS"] != "" && settings["GOARCH"] != "" {
			info.Platform = settings["GOOS"] + "/" + settings["GOARCH"]
		}
		info.Commit = settings["vcs.revision"]
		info.BuiltAt = settings["vcs.time"]
		info.Modified = strings.EqualFold(settings["vcs.modified"], "true")
	}

	if info.Version == "devel" && buildinfo.Version != "" {
		info.Version = buildinfo.Version
	}
	if info.Commit == "" {
		info.Commit = buildinfo.Commit
	}
	if info.BuiltAt == "" {
		info.BuiltAt = buildinfo.Date
	}
	return info
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
