// Package textgen talks to an Ollama-compatible text generation API. It is
// used for advisory commentary on diagrams and is never on the path of a
// diagram operation.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Defaults for a local Ollama install.
const (
	DefaultURL     = "http://localhost:11434"
	DefaultModel   = "llama3"
	DefaultTimeout = 60 * time.Second
)

// Reply statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Reply is the outcome of one generation. Failures are replies too, so
// callers can show them next to the diagram data they were asked about.
type Reply struct {
	Status   string `json:"status"`
	Response string `json:"response,omitempty"`
	Model    string `json:"model,omitempty"`
	Message  string `json:"message,omitempty"`
	Details  string `json:"details,omitempty"`
}

// OK reports whether generation succeeded.
func (r *Reply) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

// Client calls POST {BaseURL}/api/generate without streaming.
type Client struct {
	BaseURL string
	Model   string
	HTTP    *http.Client
	Log     *zap.Logger
}

// New returns a client with defaults filled in for empty arguments.
func New(baseURL, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		HTTP:    &http.Client{Timeout: timeout},
		Log:     zap.NewNop(),
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate sends prompt with an optional system instruction.
func (c *Client) Generate(ctx context.Context, prompt, system string) *Reply {
	body, err := json.Marshal(generateRequest{Model: c.Model, Prompt: prompt, System: system})
	if err != nil {
		return c.fail(err, "Error generating text: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return c.fail(err, "Error generating text: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return c.fail(err, "Error generating text: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return c.fail(err, "Error generating text: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		r := c.fail(nil, "Ollama API error: %d", resp.StatusCode)
		r.Details = strings.TrimSpace(string(data))
		return r
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return c.fail(err, "Error generating text: malformed response: %v", err)
	}
	return &Reply{Status: StatusSuccess, Response: out.Response, Model: c.Model}
}

func (c *Client) fail(err error, format string, args ...interface{}) *Reply {
	msg := fmt.Sprintf(format, args...)
	c.Log.Warn("textgen.failed", zap.String("model", c.Model), zap.String("message", msg), zap.Error(err))
	return &Reply{Status: StatusError, Message: msg}
}

const analyzeSystem = "You are an expert at analyzing and understanding diagrams. Provide a concise, professional analysis."

const analyzePrompt = `Please analyze this diagram data and provide insights:

%s

Focus on:
1. The main components and their relationships
2. The overall structure and organization
3. Any potential improvements or issues

Provide a clear and concise analysis.`

const improveSystem = "You are an expert at designing clear and effective diagrams. Provide practical, specific suggestions for improvement."

const improvePrompt = `Please suggest improvements for this diagram:

%s

Focus on:
1. Layout and organization
2. Clarity and readability
3. Visual design
4. Information flow

Provide specific, actionable suggestions.`

// AnalyzeDiagram asks for a summary of analysis data.
func (c *Client) AnalyzeDiagram(ctx context.Context, data interface{}) *Reply {
	return c.withData(ctx, analyzePrompt, analyzeSystem, data)
}

// SuggestImprovements asks for layout and clarity suggestions.
func (c *Client) SuggestImprovements(ctx context.Context, data interface{}) *Reply {
	return c.withData(ctx, improvePrompt, improveSystem, data)
}

func (c *Client) withData(ctx context.Context, prompt, system string, data interface{}) *Reply {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return c.fail(err, "Error encoding diagram data: %v", err)
	}
	return c.Generate(ctx, fmt.Sprintf(prompt, b), system)
}
