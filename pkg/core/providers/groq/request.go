package groq

import (
	"encoding/json"

	"github.com/foundry-kitchen/concierge/pkg/core/types"
)

// chatRequest is the OpenAI-compatible chat completions request format.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   *int          `json:"max_completion_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Tools       []chatTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
}

// chatMessage is a single message on the wire.
type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// chatTool is a tool declaration on the wire.
type chatTool struct {
	Type     string       `json:"type"` // always "function"
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// toolCall is a tool invocation on the wire. Arguments is a JSON-encoded
// string, not an object.
type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// buildRequest converts a concierge completion request to the wire format.
func buildRequest(req *types.CompletionRequest) *chatRequest {
	out := &chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		ToolChoice:  req.ToolChoice,
	}
	if out.Model == "" {
		out.Model = DefaultModel
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = &req.MaxTokens
	}

	out.Messages = make([]chatMessage, 0, len(req.Turns)+1)
	if req.System != "" {
		out.Messages = append(out.Messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, turn := range req.Turns {
		msg := chatMessage{
			Role:       string(turn.Role),
			Content:    turn.Content,
			ToolCallID: turn.ToolCallID,
			Name:       turn.ToolName,
		}
		for _, tc := range turn.ToolCalls {
			wire := toolCall{ID: tc.ID, Type: "function"}
			wire.Function.Name = tc.Name
			wire.Function.Arguments = tc.Arguments
			msg.ToolCalls = append(msg.ToolCalls, wire)
		}
		out.Messages = append(out.Messages, msg)
	}

	for _, spec := range req.Tools {
		params, _ := json.Marshal(spec.Parameters)
		out.Tools = append(out.Tools, chatTool{
			Type: "function",
			Function: toolFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
