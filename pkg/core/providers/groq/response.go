package groq

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/foundry-kitchen/concierge/pkg/core"
	"github.com/foundry-kitchen/concierge/pkg/core/types"
)

// chatResponse is the OpenAI-compatible chat completions response format.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func parseResponse(body []byte) (*types.CompletionResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, core.NewProviderError("groq", fmt.Errorf("parse response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, core.NewProviderError("groq", fmt.Errorf("response has no choices"))
	}

	msg := resp.Choices[0].Message
	turn := types.Turn{Role: types.RoleAssistant, Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		turn.ToolCalls = append(turn.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return &types.CompletionResponse{
		Turn:  turn,
		Model: resp.Model,
		Usage: types.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// parseError converts a non-2xx upstream response into a core.Error. 4xx
// failures other than 429 are not retryable.
func (p *Provider) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var parsed errorResponse
	msg := ""
	if err := json.Unmarshal(body, &parsed); err == nil {
		msg = parsed.Error.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("groq returned status %d", resp.StatusCode)
	}

	errType := core.ErrProvider
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		errType = core.ErrAuthentication
	case resp.StatusCode == http.StatusTooManyRequests:
		errType = core.ErrProvider
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		errType = core.ErrInvalidRequest
	}

	out := &core.Error{Type: errType, Message: msg}
	if errType == core.ErrProvider {
		out.Code = core.CodeProviderUnavailable
	}
	return out
}
