package cli

import (
	"github.com/spf13/cobra"

	builtindocs "github.com/mcp-visio/mcpvisio/docs"
	"github.com/mcp-visio/mcpvisio/internal/ui"
)

const docsCommandHint = "For command docs, use: mcpvisio help <command>"

var docsCmd = &cobra.Command{
	Use:   "docs [topic]",
	Short: "Read the bundled guide",
	Long: `List the guide topics, or render one.

Examples:
  mcpvisio docs
  mcpvisio docs tools
  mcpvisio docs relay --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDocs,
}

func runDocs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		topics, err := builtindocs.Topics()
		if err != nil {
			return handleError(ErrInternal, err, "")
		}
		if isJSONOutput() {
			outputSuccess(map[string]interface{}{"topics": topics}, &Meta{Count: len(topics)})
			return nil
		}
		t := ui.NewTable(2)
		for _, topic := range topics {
			t.AddRow("  "+ui.AccentBold.Render(topic.ID), topic.Title)
		}
		printf("%s\n%s\n%s\n", ui.Header("Guide topics"), t.String(), ui.Hint(docsCommandHint))
		return nil
	}

	topic, content, err := builtindocs.Read(args[0])
	if err != nil {
		return handleError(ErrInvalidInput, err, "Run 'mcpvisio docs' to list topics")
	}
	if isJSONOutput() {
		outputSuccess(map[string]interface{}{"id": topic.ID, "title": topic.Title, "content": content}, nil)
		return nil
	}

	display := ui.DisplayFor(stdout)
	if !display.IsTTY {
		printf("%s", content)
		return nil
	}
	rendered, err := ui.RenderMarkdown(content, display.AvailableWidth(2))
	if err != nil {
		printf("%s", content)
		return nil
	}
	printf("%s", rendered)
	return nil
}

func init() {
	rootCmd.AddCommand(docsCmd)
}
