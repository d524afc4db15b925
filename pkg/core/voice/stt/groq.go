package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/foundry-kitchen/concierge/pkg/core"
	"github.com/foundry-kitchen/concierge/pkg/core/types"
)

const (
	groqBaseURL = "https://api.groq.com/openai/v1"

	// DefaultWhisperModel is the transcription model.
	DefaultWhisperModel = "whisper-large-v3-turbo"
)

// GroqProvider implements the Provider interface against Groq's
// OpenAI-compatible audio transcription endpoint.
type GroqProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGroq creates a new Groq STT provider.
func NewGroq(apiKey string) *GroqProvider {
	return &GroqProvider{
		apiKey:     apiKey,
		baseURL:    groqBaseURL,
		httpClient: &http.Client{},
	}
}

// NewGroqWithClient creates a provider with a custom base URL and HTTP
// client, used by tests and self-hosted compatible endpoints.
func NewGroqWithClient(apiKey, baseURL string, client *http.Client) *GroqProvider {
	p := NewGroq(apiKey)
	if baseURL != "" {
		p.baseURL = baseURL
	}
	if client != nil {
		p.httpClient = client
	}
	return p
}

// Name returns the provider identifier.
func (p *GroqProvider) Name() string {
	return "groq"
}

// Transcribe converts one audio segment to text. A zero-length segment
// short-circuits with a no_audio_captured error before any network call, so
// accidental clicks never cost a round trip.
func (p *GroqProvider) Transcribe(ctx context.Context, segment types.AudioSegment, opts TranscribeOptions) (*Transcript, error) {
	if segment.Empty() {
		return nil, &core.Error{
			Type:    core.ErrInvalidRequest,
			Code:    core.CodeNoAudioCaptured,
			Message: "no audio captured",
		}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "audio."+extensionFor(segment.MIMEType))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(segment.Data); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = DefaultWhisperModel
	}
	if err := mw.WriteField("model", model); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	if opts.Language != "" {
		if err := mw.WriteField("language", opts.Language); err != nil {
			return nil, fmt.Errorf("write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	reqURL := strings.TrimRight(p.baseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &core.Error{
			Type:    core.ErrProvider,
			Code:    core.CodeTranscriptionFailed,
			Message: fmt.Sprintf("transcription request: %v", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &core.Error{
			Type:    core.ErrProvider,
			Code:    core.CodeTranscriptionFailed,
			Message: fmt.Sprintf("transcription error %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var parsed struct {
		Text     string   `json:"text"`
		Language *string  `json:"language,omitempty"`
		Duration *float64 `json:"duration,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &core.Error{
			Type:    core.ErrProvider,
			Code:    core.CodeTranscriptionFailed,
			Message: fmt.Sprintf("parse transcription response: %v", err),
		}
	}

	t := &Transcript{Text: strings.TrimSpace(parsed.Text)}
	if parsed.Language != nil {
		t.Language = *parsed.Language
	}
	if parsed.Duration != nil {
		t.Duration = *parsed.Duration
	}
	return t, nil
}

// extensionFor maps a segment MIME type to the upload filename extension.
func extensionFor(mimeType string) string {
	base := mimeType
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		base = parsed
	}
	switch base {
	case "audio/webm":
		return "webm"
	case "audio/wav", "audio/x-wav":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/ogg":
		return "ogg"
	case "audio/flac":
		return "flac"
	case "audio/mp4", "audio/m4a":
		return "m4a"
	default:
		return "webm"
	}
}
