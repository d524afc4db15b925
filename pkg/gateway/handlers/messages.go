package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/foundry-kitchen/concierge/pkg/core"
	"github.com/foundry-kitchen/concierge/pkg/core/types"
	"github.com/foundry-kitchen/concierge/pkg/gateway/config"
	"github.com/foundry-kitchen/concierge/pkg/gateway/mw"
	"github.com/foundry-kitchen/concierge/pkg/gateway/orchestrator"
	"github.com/foundry-kitchen/concierge/pkg/gateway/store"
)

// MessagesHandler runs one text turn through the orchestrator on a thread.
type MessagesHandler struct {
	Config       config.Config
	Store        *store.Store
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger
}

type messageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	ThreadID string       `json:"thread_id"`
	Turns    []types.Turn `json:"turns"`
	Usage    *types.Usage `json:"usage,omitempty"`
}

func (h MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("failed to read request body"), http.StatusBadRequest)
		return
	}

	var req messageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("request body must be JSON"), http.StatusBadRequest)
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("text must not be empty"), http.StatusBadRequest)
		return
	}

	threadID := r.PathValue("id")
	thread, err := h.Store.Thread(identity, threadID)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}

	res, advErr := h.Orchestrator.Advance(r.Context(), identity, threadID, thread.Turns, req.Text)
	if res == nil || len(res.Appended) == 0 {
		// Nothing appended means the round never started (busy thread or
		// cancelled before the user turn was recorded).
		writeErr(w, reqID, advErr)
		return
	}

	// A provider failure still yields a consistent, renderable sequence
	// ending in the apology turn. Persist whatever was appended and respond
	// with it; the failure is an upstream detail the conversation absorbs.
	if advErr != nil {
		h.Logger.Warn("advance completed degraded",
			"request_id", reqID, "thread_id", threadID, "error", advErr)
	}

	updated, err := h.Store.AppendTurns(identity, threadID, res.Appended)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}

	resp := messageResponse{ThreadID: updated.ID, Turns: res.Appended}
	if res.Usage.TotalTokens > 0 {
		u := res.Usage
		resp.Usage = &u
	}
	writeJSON(w, http.StatusOK, resp)
}
