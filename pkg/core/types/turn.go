// Package types defines the conversation data model shared by the
// orchestrator, the completion provider, and the conversation store.
package types

import "fmt"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request from the completion provider asking the
// orchestrator to execute a named tool. Arguments is the raw JSON payload as
// received; it is parsed only at execution time.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Turn is one message in a conversation thread.
//
// Content may be empty on assistant turns that only carry tool calls.
// ToolCallID is set only on tool turns and links back to the ToolCall.ID of a
// preceding assistant turn.
type Turn struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"name,omitempty"`
}

// UserTurn creates a plain user turn.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Content: text}
}

// AssistantTurn creates a plain assistant turn.
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Content: text}
}

// ToolTurn creates a tool result turn for the given call.
func ToolTurn(call ToolCall, result string) Turn {
	return Turn{Role: RoleTool, ToolCallID: call.ID, ToolName: call.Name, Content: result}
}

// ValidateTurns checks that every tool turn consumes exactly one tool call id
// declared by the nearest preceding assistant turn. A sequence that fails this
// check must never be sent to the completion provider.
func ValidateTurns(turns []Turn) error {
	pending := map[string]bool{}
	for i, t := range turns {
		switch t.Role {
		case RoleAssistant:
			pending = make(map[string]bool, len(t.ToolCalls))
			for _, tc := range t.ToolCalls {
				if tc.ID == "" {
					return fmt.Errorf("turn %d: tool call without id", i)
				}
				pending[tc.ID] = true
			}
		case RoleTool:
			if t.ToolCallID == "" {
				return fmt.Errorf("turn %d: tool turn without tool_call_id", i)
			}
			if !pending[t.ToolCallID] {
				return fmt.Errorf("turn %d: orphaned tool turn %q", i, t.ToolCallID)
			}
			delete(pending, t.ToolCallID)
		case RoleUser:
			pending = map[string]bool{}
		default:
			return fmt.Errorf("turn %d: unknown role %q", i, t.Role)
		}
	}
	return nil
}

// CloneTurns returns an independent copy of a turn sequence. Tool call slices
// are copied so appends on the clone never alias the original.
func CloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	for i := range out {
		if len(out[i].ToolCalls) > 0 {
			tcs := make([]ToolCall, len(out[i].ToolCalls))
			copy(tcs, out[i].ToolCalls)
			out[i].ToolCalls = tcs
		}
	}
	return out
}
