// Package llm provides LLM client implementations.
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message for the LLM.
type Message struct {
	Role      string     `json:"role"` // system, user, assistant, tool
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolName is set on role "tool" messages so the provider can
	// correlate the result with the originating function call.
	ToolName string `json:"tool_name,omitempty"`
}

// ToolCall represents a tool call from the model.
type ToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// ChatResponse is the unified response from any LLM provider.
// All fields use proper Go types — wire format conversion happens at
// the provider boundary (gemini.go).
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int
}

// NewToolCall builds a ToolCall from a name and argument map. The
// anonymous Function struct makes literal construction awkward, so
// providers and tests use this helper.
func NewToolCall(name string, args map[string]any) ToolCall {
	var tc ToolCall
	tc.Function.Name = name
	tc.Function.Arguments = args
	return tc
}
