package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcp-visio/mcpvisio/internal/ops"
	"github.com/mcp-visio/mcpvisio/internal/ui"
)

var callBackend string

// stdin is read when params are given as "-".
var stdin io.Reader = os.Stdin

var callCmd = &cobra.Command{
	Use:   "call <method> [params-json]",
	Short: "Invoke one RPC method and print the result",
	Long: `Invoke one RPC method through the same dispatcher the server uses.

Params are a JSON object. Pass "-" to read them from stdin.

With the local backend the engine lives only for this call, so calls that
depend on an open document need a file path or '--backend relay'.

Examples:
  mcpvisio call ping
  mcpvisio call get_available_stencils
  mcpvisio call analyze_visio_diagram '{"file_path":"/data/flow.vsdx"}'
  echo '{"file_path":"/data/new.vsdx"}' | mcpvisio call create_new_diagram -
  mcpvisio call get_active_document --backend relay --json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func runCall(cmd *cobra.Command, args []string) error {
	method := strings.TrimSpace(args[0])
	params := json.RawMessage(`{}`)
	if len(args) > 1 {
		raw, err := readParams(args[1])
		if err != nil {
			return handleError(ErrInvalidInput, err, "Params must be a JSON object, e.g. '{\"page_index\":1}'")
		}
		params = raw
	}

	c := getConfig()
	if cmd.Flags().Changed("backend") {
		c.Server.Backend = callBackend
		if err := c.Validate(); err != nil {
			return handleError(ErrInvalidInput, err, "")
		}
	}

	e, err := newEnv(c, getConfigPath(), envOptions{journal: true})
	if err != nil {
		return handleError(ErrConfigInvalid, err, "")
	}
	defer e.Close()

	req, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return handleError(ErrInternal, err, "")
	}

	start := time.Now()
	resp := e.rpcServer().Handle(commandContext(cmd), req)
	elapsed := time.Since(start)
	if resp == nil {
		return handleError(ErrInternal, fmt.Errorf("no response for %s", method), "")
	}

	if resp.Error != nil {
		return handleErrorWithDetails(ErrRPCError,
			fmt.Sprintf("%s (code %d)", resp.Error.Message, resp.Error.Code),
			"Run 'mcpvisio call get_client_info' to list methods and parameters",
			resp.Error)
	}

	if res, ok := resp.Result.(*ops.Result); ok && !res.OK() {
		return handleErrorWithDetails(string(res.Code), res.Message, "", res.Details)
	}

	if isJSONOutput() {
		outputSuccess(resp.Result, &Meta{DurationMs: elapsed.Milliseconds()})
		return nil
	}

	printf("%s %s\n", ui.Success(method), ui.Hint(elapsed.Round(time.Millisecond).String()))
	printf("%s\n", prettyJSON(resp.Result))
	return nil
}

// readParams reads a params argument, "-" meaning stdin, and checks that
// it is a JSON object.
func readParams(arg string) (json.RawMessage, error) {
	data := []byte(arg)
	if arg == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read params from stdin: %w", err)
		}
		data = b
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("invalid params JSON: %w", err)
	}
	if obj == nil {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(data), nil
}

func init() {
	callCmd.Flags().StringVar(&callBackend, "backend", "", "Backend: local or relay (default from config)")
	rootCmd.AddCommand(callCmd)
}
