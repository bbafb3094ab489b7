package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mcp-visio/mcpvisio/internal/ops"
	"github.com/mcp-visio/mcpvisio/internal/ui"
)

var stencilsMasters bool

type stencilListing struct {
	Open []struct {
		Name         string `json:"name"`
		MastersCount int    `json:"masters_count"`
	} `json:"open_stencils"`
	Suggested []ops.SuggestedStencil `json:"suggested_stencils"`
}

type masterListing struct {
	ByStencil map[string][]ops.MasterInfo `json:"masters_by_stencil"`
}

var stencilsCmd = &cobra.Command{
	Use:   "stencils",
	Short: "List stencils, or the masters they provide",
	Long: `List the open and suggested stencils, or with --masters the masters of
every open stencil (the basic stencil when none is open).

Examples:
  mcpvisio stencils
  mcpvisio stencils --masters
  mcpvisio stencils --masters --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(getConfig(), getConfigPath(), envOptions{})
		if err != nil {
			return handleError(ErrConfigInvalid, err, "")
		}
		defer e.Close()

		backend := e.backend()
		ctx := commandContext(cmd)

		var res *ops.Result
		if stencilsMasters {
			res, err = backend.Masters(ctx)
		} else {
			res, err = backend.Stencils(ctx)
		}
		if err != nil {
			return handleError(ErrBackendUnavailable, err, "Check that the relay host is running ('mcpvisio relay')")
		}
		if !res.OK() {
			return handleErrorWithDetails(string(res.Code), res.Message, "", res.Details)
		}
		if isJSONOutput() {
			outputSuccess(res.Data, nil)
			return nil
		}

		width := ui.DisplayFor(stdout).TermWidth
		if stencilsMasters {
			var listing masterListing
			if err := decodeData(res, &listing); err != nil {
				return handleError(ErrInternal, err, "")
			}
			printMasters(listing, width)
			return nil
		}

		var listing stencilListing
		if err := decodeData(res, &listing); err != nil {
			return handleError(ErrInternal, err, "")
		}
		printStencils(listing, width)
		return nil
	},
}

func printStencils(l stencilListing, width int) {
	printf("%s %s\n", ui.Header("Open stencils"), ui.Hint(ui.Count(len(l.Open), "stencil", "stencils")))
	if len(l.Open) == 0 {
		printf("%s\n", ui.Hint("  none"))
	} else {
		rows := make([][]string, 0, len(l.Open))
		for _, s := range l.Open {
			rows = append(rows, []string{s.Name, strconv.Itoa(s.MastersCount)})
		}
		printf("%s\n", ui.Grid([]string{"NAME", "MASTERS"}, rows, width, 1))
	}

	printf("\n%s\n", ui.Header("Suggested stencils"))
	t := ui.NewTable(2)
	for _, s := range l.Suggested {
		t.AddRow("  "+s.Name, ui.Hint(s.Type))
	}
	printf("%s", t.String())
}

func printMasters(l masterListing, width int) {
	names := make([]string, 0, len(l.ByStencil))
	for name := range l.ByStencil {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		masters := l.ByStencil[name]
		if i > 0 {
			printf("\n")
		}
		printf("%s %s\n", ui.FilePath(name), ui.Hint(ui.Count(len(masters), "master", "masters")))
		rows := make([][]string, 0, len(masters))
		for _, m := range masters {
			kind := "2D"
			if m.OneD {
				kind = "1D"
			}
			rows = append(rows, []string{strconv.Itoa(m.ID), m.Name, m.Type, kind})
		}
		printf("%s\n", ui.Grid([]string{"ID", "NAME", "TYPE", "DIM"}, rows, width, 0))
	}
}

// decodeData decodes a result's data into v. Local results carry Go
// values and relay results carry decoded JSON, so both go through JSON.
func decodeData(res *ops.Result, v interface{}) error {
	b, err := json.Marshal(res.Data)
	if err != nil {
		return fmt.Errorf("failed to encode result data: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unexpected result data: %w", err)
	}
	return nil
}

func init() {
	stencilsCmd.Flags().BoolVar(&stencilsMasters, "masters", false, "List masters by stencil")
	rootCmd.AddCommand(stencilsCmd)
}
