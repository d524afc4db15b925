package core

import (
	"context"

	"github.com/foundry-kitchen/concierge/pkg/core/types"
)

// CompletionProvider performs one chat-completion round trip against an
// external model endpoint.
type CompletionProvider interface {
	// Name returns the provider identifier.
	Name() string

	// Complete sends the full turn sequence plus tool declarations and
	// returns exactly one assistant response.
	Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error)
}
