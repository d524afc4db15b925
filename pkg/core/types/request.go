package types

// CompletionRequest is one round trip to the completion provider: the full
// turn sequence so far, a system instruction, and the declared tool specs.
type CompletionRequest struct {
	Model       string
	System      string
	Turns       []Turn
	Tools       []ToolSpec
	ToolChoice  string // "auto", "none"; empty means provider default
	Temperature *float64
	MaxTokens   int
}

// CompletionResponse is the provider's single assistant message for one round
// trip, possibly carrying tool calls.
type CompletionResponse struct {
	Turn  Turn
	Model string
	Usage Usage
}

// Usage reports token accounting for one provider round trip.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of two usages.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}
