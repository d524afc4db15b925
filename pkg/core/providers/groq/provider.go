// Package groq implements the completion provider against Groq's
// OpenAI-compatible chat completions API.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/foundry-kitchen/concierge/pkg/core"
	"github.com/foundry-kitchen/concierge/pkg/core/types"
)

const (
	// DefaultBaseURL is the Groq API endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel is the chat model used by the shopping assistant.
	DefaultModel = "meta-llama/llama-4-scout-17b-16e-instruct"
)

// Provider implements core.CompletionProvider against Groq.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	retryBase  time.Duration
}

// New creates a new Groq provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		maxRetries: 2,
		retryBase:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "groq"
}

// Complete sends one chat completion round trip. Transient upstream failures
// (connection errors, 429, 5xx) are retried with exponential backoff up to the
// configured retry budget.
func (p *Provider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	if req == nil {
		return nil, core.NewInvalidRequestError("completion request is required")
	}
	if err := types.ValidateTurns(req.Turns); err != nil {
		return nil, &core.Error{Type: core.ErrInvalidRequest, Message: fmt.Sprintf("turn sequence: %v", err)}
	}

	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var out *types.CompletionResponse
	backoff := retry.WithMaxRetries(p.maxRetries, retry.NewExponential(p.retryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := p.doRequest(ctx, body)
		if err != nil {
			var ce *core.Error
			if errors.As(err, &ce) && !ce.IsRetryable() {
				return err
			}
			return retry.RetryableError(err)
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) doRequest(ctx context.Context, body []byte) (*types.CompletionResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatCompletionsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewProviderError("groq", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, p.parseError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewProviderError("groq", fmt.Errorf("read response: %w", err))
	}
	return parseResponse(respBody)
}

func (p *Provider) chatCompletionsURL() string {
	return strings.TrimRight(p.baseURL, "/") + "/chat/completions"
}
