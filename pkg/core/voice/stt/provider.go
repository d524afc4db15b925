// Package stt provides speech-to-text over finished audio segments.
package stt

import (
	"context"

	"github.com/foundry-kitchen/concierge/pkg/core/types"
)

// Provider is the interface for speech-to-text services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts one finished audio segment to text. An empty
	// segment fails without a network call.
	Transcribe(ctx context.Context, segment types.AudioSegment, opts TranscribeOptions) (*Transcript, error)
}

// TranscribeOptions configures transcription.
type TranscribeOptions struct {
	Model    string // provider-specific model
	Language string // ISO language code
}

// Transcript is the result of transcription.
type Transcript struct {
	Text     string  // full transcribed text
	Language string  // detected or specified language
	Duration float64 // audio duration in seconds
}
