// Package protocol defines the wire messages of the live voice WebSocket.
//
// The client streams JSON messages. Each audio message carries a chunk of the
// encoded recording plus a parallel run of 8-bit amplitude levels sampled
// from the client's analyser; the encoded chunk is opaque to the server, the
// levels drive silence segmentation.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/foundry-kitchen/concierge/pkg/core"
	"github.com/foundry-kitchen/concierge/pkg/core/types"
)

const (
	// Client message types.
	TypeAudio  = "audio"
	TypeStop   = "stop"
	TypeCancel = "cancel"

	// Server event types.
	TypeSessionStart       = "session_start"
	TypeUtteranceCommitted = "utterance_committed"
	TypeTranscript         = "transcript"
	TypeTurn               = "turn"
	TypeError              = "error"
)

type DecodeError struct {
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Message: message, Param: param}
}

// ClientMessage is the decoded form of one inbound message.
type ClientMessage struct {
	Type string

	// Audio fields, set only for TypeAudio.
	Data   []byte
	Levels []byte
}

type clientEnvelope struct {
	Type   string `json:"type"`
	Data   string `json:"data,omitempty"`
	Levels string `json:"levels,omitempty"`
}

// DecodeClientMessage parses and validates one inbound JSON message.
func DecodeClientMessage(raw []byte) (*ClientMessage, error) {
	var env clientEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, badRequest("message must be JSON", "")
	}

	switch env.Type {
	case TypeAudio:
		if env.Data == "" {
			return nil, badRequest("audio message requires data", "data")
		}
		data, err := base64.StdEncoding.DecodeString(env.Data)
		if err != nil {
			return nil, badRequest("data must be base64", "data")
		}
		var levels []byte
		if env.Levels != "" {
			levels, err = base64.StdEncoding.DecodeString(env.Levels)
			if err != nil {
				return nil, badRequest("levels must be base64", "levels")
			}
		}
		return &ClientMessage{Type: TypeAudio, Data: data, Levels: levels}, nil
	case TypeStop, TypeCancel:
		return &ClientMessage{Type: env.Type}, nil
	case "":
		return nil, badRequest("message requires a type", "type")
	default:
		return nil, badRequest(fmt.Sprintf("unknown message type %q", env.Type), "type")
	}
}

// Server events.

type SessionStart struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id"`
}

func NewSessionStart(threadID string) SessionStart {
	return SessionStart{Type: TypeSessionStart, ThreadID: threadID}
}

type UtteranceCommitted struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Bytes  int    `json:"bytes"`
}

func NewUtteranceCommitted(reason string, bytes int) UtteranceCommitted {
	return UtteranceCommitted{Type: TypeUtteranceCommitted, Reason: reason, Bytes: bytes}
}

type Transcript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewTranscript(text string) Transcript {
	return Transcript{Type: TypeTranscript, Text: text}
}

type TurnEvent struct {
	Type string     `json:"type"`
	Turn types.Turn `json:"turn"`
}

func NewTurnEvent(turn types.Turn) TurnEvent {
	return TurnEvent{Type: TypeTurn, Turn: turn}
}

type ErrorEvent struct {
	Type  string      `json:"type"`
	Error *core.Error `json:"error"`
}

func NewErrorEvent(err *core.Error) ErrorEvent {
	return ErrorEvent{Type: TypeError, Error: err}
}
