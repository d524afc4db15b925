// Package live runs the streaming voice session over a WebSocket: inbound
// audio frames feed a capture session, silence or an explicit stop commits
// the utterance, and the resulting conversation turns stream back as events.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/foundry-kitchen/concierge/pkg/core"
	"github.com/foundry-kitchen/concierge/pkg/core/types"
	"github.com/foundry-kitchen/concierge/pkg/core/voice"
	"github.com/foundry-kitchen/concierge/pkg/core/voice/stt"
	"github.com/foundry-kitchen/concierge/pkg/gateway/apierror"
	"github.com/foundry-kitchen/concierge/pkg/gateway/live/protocol"
	"github.com/foundry-kitchen/concierge/pkg/gateway/orchestrator"
	"github.com/foundry-kitchen/concierge/pkg/gateway/store"
)

// Config tunes one live session.
type Config struct {
	SilenceDeadband    int
	SilenceGrace       time.Duration
	SilenceTick        time.Duration
	MaxFrameBytes      int
	PingInterval       time.Duration
	WriteTimeout       time.Duration
	MaxSessionDuration time.Duration
	TranscriptionModel string
}

func (c Config) withDefaults() Config {
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = 64 * 1024
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MaxSessionDuration <= 0 {
		c.MaxSessionDuration = 30 * time.Minute
	}
	return c
}

// Deps are the collaborators a session drives.
type Deps struct {
	Store        *store.Store
	Orchestrator *orchestrator.Orchestrator
	STT          stt.Provider
	Logger       *slog.Logger
}

type commit struct {
	segment types.AudioSegment
	reason  voice.StopReason
}

// Session is one connected voice client. The read loop owns the WebSocket
// reads, a writer goroutine owns all writes, and a processor goroutine
// handles committed utterances one at a time so turn events never interleave.
type Session struct {
	ws       *websocket.Conn
	identity string
	threadID string
	cfg      Config
	deps     Deps
	logger   *slog.Logger

	outbound chan any
	commits  chan commit

	capture *voice.CaptureSession
	source  *voice.FrameSource
	cancel  context.CancelFunc
}

// Run drives one session to completion. It returns when the client
// disconnects, the session duration expires, or the context is cancelled.
func Run(ctx context.Context, ws *websocket.Conn, identity string, cfg Config, deps Deps) error {
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	thread, err := deps.Store.ActiveThread(identity)
	if err != nil {
		// First contact since startup: resolving the identity opens a fresh
		// active thread.
		thread, err = deps.Store.ResolveIdentity(identity)
		if err != nil {
			return err
		}
	}

	s := &Session{
		ws:       ws,
		identity: identity,
		threadID: thread.ID,
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		outbound: make(chan any, 32),
		commits:  make(chan commit, 4),
	}

	ctx, cancelAll := context.WithTimeout(ctx, cfg.MaxSessionDuration)
	defer cancelAll()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx)
	}()

	processorDone := make(chan struct{})
	go func() {
		defer close(processorDone)
		for c := range s.commits {
			s.processCommit(ctx, c)
		}
	}()

	s.send(protocol.NewSessionStart(thread.ID))

	readErr := s.readLoop(ctx)

	s.stopCapture(voice.StopCancelled)
	close(s.commits)
	<-processorDone
	cancelAll()
	<-writerDone

	if readErr != nil && !websocket.IsCloseError(readErr,
		websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return readErr
	}
	return nil
}

func (s *Session) readLoop(ctx context.Context) error {
	s.ws.SetReadLimit(int64(s.cfg.MaxFrameBytes) * 2)

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			return err
		}

		msg, err := protocol.DecodeClientMessage(raw)
		if err != nil {
			s.sendError(&core.Error{
				Type:    core.ErrInvalidRequest,
				Message: err.Error(),
			})
			continue
		}

		switch msg.Type {
		case protocol.TypeAudio:
			if len(msg.Data) > s.cfg.MaxFrameBytes {
				s.sendError(core.NewInvalidRequestError("audio frame too large"))
				continue
			}
			s.ensureCapture(ctx)
			if s.source != nil {
				s.source.Push(voice.Frame{Data: msg.Data, Levels: msg.Levels})
			}
		case protocol.TypeStop:
			s.stopCapture(voice.StopManual)
		case protocol.TypeCancel:
			s.stopCapture(voice.StopCancelled)
		}
	}
}

// ensureCapture starts a fresh capture session for the next utterance if none
// is recording. Each utterance gets its own session; a session records once.
func (s *Session) ensureCapture(ctx context.Context) {
	if s.capture != nil && s.capture.Recording() {
		return
	}

	source := voice.NewFrameSource(64)
	capture := voice.NewCaptureSession(source, voice.CaptureConfig{
		Silence: voice.SilenceConfig{
			Deadband: s.cfg.SilenceDeadband,
			Grace:    s.cfg.SilenceGrace,
		},
		Tick: s.cfg.SilenceTick,
	})

	capCtx, cancel := context.WithCancel(ctx)
	if err := capture.Start(capCtx); err != nil {
		cancel()
		s.sendError(&core.Error{
			Type:    core.ErrAPI,
			Code:    core.CodeDeviceUnavailable,
			Message: "failed to start capture",
		})
		return
	}

	s.capture = capture
	s.source = source
	s.cancel = cancel

	go func() {
		<-capture.Done()
		cancel()
		segment, reason := capture.Result()
		if reason == voice.StopCancelled {
			return
		}
		select {
		case s.commits <- commit{segment: segment, reason: reason}:
		default:
			s.logger.Warn("utterance dropped, processor backlogged", "thread_id", s.threadID)
		}
	}()
}

// stopCapture ends the current recording, if any. Manual stop commits the
// utterance; cancel discards it.
func (s *Session) stopCapture(reason voice.StopReason) {
	capture := s.capture
	if capture == nil {
		return
	}
	if reason == voice.StopCancelled {
		if s.cancel != nil {
			s.cancel()
		}
		return
	}
	capture.Stop()
}

// processCommit turns one committed utterance into conversation turns:
// transcribe, advance the thread, persist, and stream events back.
func (s *Session) processCommit(ctx context.Context, c commit) {
	s.send(protocol.NewUtteranceCommitted(string(c.reason), len(c.segment.Data)))

	transcript, err := s.deps.STT.Transcribe(ctx, c.segment, stt.TranscribeOptions{
		Model: s.cfg.TranscriptionModel,
	})
	if err != nil {
		coreErr, _ := apierror.FromError(err, "")
		s.sendError(coreErr)
		return
	}
	if transcript.Text == "" {
		s.sendError(&core.Error{
			Type:    core.ErrInvalidRequest,
			Code:    core.CodeNoAudioCaptured,
			Message: "transcription produced no text",
		})
		return
	}
	s.send(protocol.NewTranscript(transcript.Text))

	thread, err := s.deps.Store.Thread(s.identity, s.threadID)
	if err != nil {
		coreErr, _ := apierror.FromError(err, "")
		s.sendError(coreErr)
		return
	}

	res, advErr := s.deps.Orchestrator.Advance(ctx, s.identity, s.threadID, thread.Turns, transcript.Text)
	if res == nil || len(res.Appended) == 0 {
		coreErr, _ := apierror.FromError(advErr, "")
		s.sendError(coreErr)
		return
	}
	if advErr != nil {
		s.logger.Warn("advance completed degraded", "thread_id", s.threadID, "error", advErr)
	}

	if _, err := s.deps.Store.AppendTurns(s.identity, s.threadID, res.Appended); err != nil {
		coreErr, _ := apierror.FromError(err, "")
		s.sendError(coreErr)
	}

	for _, turn := range res.Appended {
		s.send(protocol.NewTurnEvent(turn))
	}
}

func (s *Session) send(event any) {
	select {
	case s.outbound <- event:
	default:
		s.logger.Warn("outbound event dropped", "thread_id", s.threadID)
	}
}

func (s *Session) sendError(coreErr *core.Error) {
	s.send(protocol.NewErrorEvent(coreErr))
}

func (s *Session) writeLoop(ctx context.Context) {
	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flushOutbound()
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			_ = s.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = s.ws.Close()
			return
		case <-ping.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := s.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return
			}
		case event := <-s.outbound:
			if err := s.writeEvent(event); err != nil {
				return
			}
		}
	}
}

// flushOutbound drains events queued before shutdown so the client sees the
// final turns of a session that ended right after a commit.
func (s *Session) flushOutbound() {
	for {
		select {
		case event := <-s.outbound:
			if err := s.writeEvent(event); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) writeEvent(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("event marshal failed", "error", err)
		return nil
	}
	_ = s.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.ws.WriteMessage(websocket.TextMessage, payload)
}
