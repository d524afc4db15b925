package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/foundry-kitchen/concierge/pkg/core"
	"github.com/foundry-kitchen/concierge/pkg/core/types"
	"github.com/foundry-kitchen/concierge/pkg/core/voice/stt"
	"github.com/foundry-kitchen/concierge/pkg/gateway/config"
	"github.com/foundry-kitchen/concierge/pkg/gateway/mw"
	"github.com/foundry-kitchen/concierge/pkg/gateway/orchestrator"
	"github.com/foundry-kitchen/concierge/pkg/gateway/store"
)

// UtterancesHandler accepts one finished audio segment, transcribes it, and
// advances the caller's active thread with the transcript as the user turn.
type UtterancesHandler struct {
	Config       config.Config
	Store        *store.Store
	Orchestrator *orchestrator.Orchestrator
	STT          stt.Provider
	Logger       *slog.Logger
}

type utteranceResponse struct {
	Transcript string       `json:"transcript"`
	ThreadID   string       `json:"thread_id"`
	Turns      []types.Turn `json:"turns"`
}

func (h UtterancesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reqID, _ := mw.RequestIDFrom(r.Context())
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxAudioBytes)
	if err := r.ParseMultipartForm(h.Config.MaxAudioBytes); err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("request must be multipart/form-data with an audio part"), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrInvalidRequest,
			Code:    core.CodeNoAudioCaptured,
			Message: "missing audio part",
			Param:   "audio",
		}, http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("failed to read audio part"), http.StatusBadRequest)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	segment := types.AudioSegment{Data: data, MIMEType: mimeType}

	transcript, err := h.STT.Transcribe(r.Context(), segment, stt.TranscribeOptions{
		Model:    h.Config.TranscriptionModel,
		Language: strings.TrimSpace(r.FormValue("language")),
	})
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	if transcript.Text == "" {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrInvalidRequest,
			Code:    core.CodeNoAudioCaptured,
			Message: "transcription produced no text",
		}, http.StatusBadRequest)
		return
	}

	thread, err := h.Store.ActiveThread(identity)
	if err != nil {
		// First contact for this identity: resolving it starts a fresh
		// active thread.
		thread, err = h.Store.ResolveIdentity(identity)
		if err != nil {
			writeErr(w, reqID, err)
			return
		}
	}

	res, advErr := h.Orchestrator.Advance(r.Context(), identity, thread.ID, thread.Turns, transcript.Text)
	if res == nil || len(res.Appended) == 0 {
		writeErr(w, reqID, advErr)
		return
	}
	if advErr != nil {
		h.Logger.Warn("advance completed degraded",
			"request_id", reqID, "thread_id", thread.ID, "error", advErr)
	}

	if _, err := h.Store.AppendTurns(identity, thread.ID, res.Appended); err != nil {
		writeErr(w, reqID, err)
		return
	}

	writeJSON(w, http.StatusOK, utteranceResponse{
		Transcript: transcript.Text,
		ThreadID:   thread.ID,
		Turns:      res.Appended,
	})
}
