package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/mcp-visio/mcpvisio/internal/atomicfile"
	"github.com/mcp-visio/mcpvisio/internal/ops"
	"github.com/mcp-visio/mcpvisio/internal/textgen"
	"github.com/mcp-visio/mcpvisio/internal/ui"
)

var (
	adviseSuggest bool
	adviseHTML    bool
	adviseOutput  string
	adviseModel   string
)

// stderr receives progress output. Tests swap it for a buffer.
var stderr io.Writer = os.Stderr

var adviseCmd = &cobra.Command{
	Use:   "advise <file>",
	Short: "Ask a language model to review a diagram",
	Long: `Analyze a diagram and ask the configured text generation API (an Ollama
compatible endpoint) to explain it, or with --suggest to propose improvements.

The commentary is markdown. It is rendered for the terminal, or converted to
HTML with --html.

Examples:
  mcpvisio advise /data/flow.vsdx
  mcpvisio advise /data/flow.vsdx --suggest --model mistral
  mcpvisio advise /data/flow.vsdx --html --output review.html`,
	Args: cobra.ExactArgs(1),
	RunE: runAdvise,
}

func runAdvise(cmd *cobra.Command, args []string) error {
	file := strings.TrimSpace(args[0])
	if file == "" {
		return handleError(ErrMissingArgument, fmt.Errorf("a diagram file is required"), "")
	}

	c := getConfig()
	e, err := newEnv(c, getConfigPath(), envOptions{})
	if err != nil {
		return handleError(ErrConfigInvalid, err, "")
	}
	defer e.Close()

	ctx := commandContext(cmd)
	res, err := e.backend().Analyze(ctx, ops.AnalyzeParams{FilePath: file, AnalysisType: ops.AnalyzeAll})
	if err != nil {
		return handleError(ErrBackendUnavailable, err, "")
	}
	if !res.OK() {
		return handleErrorWithDetails(string(res.Code), res.Message, "", res.Details)
	}

	model := c.TextGen.Model
	if adviseModel != "" {
		model = adviseModel
	}
	client := textgen.New(c.TextGen.URL, model, c.TextGen.Timeout.Duration)
	client.Log = e.log.Named("textgen")

	var spinner *ui.Spinner
	if !isJSONOutput() {
		spinner = ui.NewSpinner(stderr, fmt.Sprintf("Asking %s about %s", client.Model, file))
		spinner.Start()
	}
	var reply *textgen.Reply
	if adviseSuggest {
		reply = client.SuggestImprovements(ctx, res.Data)
	} else {
		reply = client.AnalyzeDiagram(ctx, res.Data)
	}
	if spinner != nil {
		spinner.Stop()
	}

	if !reply.OK() {
		return handleErrorWithDetails(ErrTextGenFailed, reply.Message,
			fmt.Sprintf("Check that %s is reachable and serves model %q", client.BaseURL, client.Model),
			reply)
	}

	if isJSONOutput() {
		outputSuccess(map[string]interface{}{
			"file":     file,
			"model":    reply.Model,
			"analysis": res.Data,
			"advice":   reply.Response,
		}, nil)
		return nil
	}

	if adviseHTML {
		html, err := markdownToHTML(reply.Response)
		if err != nil {
			return handleError(ErrInternal, err, "")
		}
		if adviseOutput != "" {
			if err := atomicfile.WriteFile(adviseOutput, html, 0o644); err != nil {
				return handleError(ErrInternal, err, "")
			}
			printf("%s\n", ui.Successf("Wrote %s", ui.FilePath(adviseOutput)))
			return nil
		}
		printf("%s", html)
		return nil
	}

	width := ui.DisplayFor(stdout).AvailableWidth(2)
	rendered, err := ui.RenderMarkdown(reply.Response, width)
	if err != nil {
		rendered = reply.Response + "\n"
	}
	printf("%s %s\n", ui.Header(file), ui.Hint(reply.Model))
	printf("%s", rendered)
	return nil
}

// markdownToHTML converts generated markdown to an HTML fragment. Raw HTML
// in the input is omitted.
func markdownToHTML(md string) ([]byte, error) {
	gm := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := gm.Convert([]byte(md), &buf); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.Bytes(), nil
}

func init() {
	adviseCmd.Flags().BoolVar(&adviseSuggest, "suggest", false, "Ask for improvements instead of an explanation")
	adviseCmd.Flags().BoolVar(&adviseHTML, "html", false, "Print the commentary as HTML")
	adviseCmd.Flags().StringVarP(&adviseOutput, "output", "o", "", "With --html, write to this file")
	adviseCmd.Flags().StringVar(&adviseModel, "model", "", "Model name (default from config)")
	rootCmd.AddCommand(adviseCmd)
}
