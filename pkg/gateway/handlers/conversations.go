package handlers

import (
	"log/slog"
	"net/http"

	"github.com/foundry-kitchen/concierge/pkg/core"
	"github.com/foundry-kitchen/concierge/pkg/core/types"
	"github.com/foundry-kitchen/concierge/pkg/gateway/auth"
	"github.com/foundry-kitchen/concierge/pkg/gateway/mw"
	"github.com/foundry-kitchen/concierge/pkg/gateway/store"
)

// conversationResp is the wire shape of one thread. Turns are included only
// on single-thread responses; listings carry the summary fields.
type conversationResp struct {
	ID        string       `json:"id"`
	Title     string       `json:"title,omitempty"`
	CreatedAt string       `json:"created_at"`
	UpdatedAt string       `json:"updated_at"`
	Turns     []types.Turn `json:"turns,omitempty"`
}

func conversationFrom(t *types.Thread, withTurns bool) conversationResp {
	out := conversationResp{
		ID:        t.ID,
		Title:     t.Title(),
		CreatedAt: t.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		UpdatedAt: t.UpdatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if withTurns {
		out.Turns = t.Turns
	}
	return out
}

// identityFrom extracts the caller identity or writes the 401 itself.
func identityFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity := auth.IdentityFrom(r.Context())
	if identity == "" {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrAuthentication,
			Code:    core.CodeUnauthenticated,
			Message: "User not logged in",
		}, http.StatusUnauthorized)
		return "", false
	}
	return identity, true
}

// ConversationsHandler serves the thread collection: POST creates a thread
// and makes it active, GET lists threads most recent first.
type ConversationsHandler struct {
	Store  *store.Store
	Logger *slog.Logger
}

func (h ConversationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		thread, err := h.Store.CreateThread(identity)
		if err != nil {
			writeErr(w, reqID, err)
			return
		}
		writeJSON(w, http.StatusCreated, conversationFrom(thread, true))
	case http.MethodGet:
		threads, err := h.Store.ListThreads(identity)
		if err != nil {
			writeErr(w, reqID, err)
			return
		}
		active := ""
		if at, err := h.Store.ActiveThread(identity); err == nil {
			active = at.ID
		}
		out := struct {
			Conversations []conversationResp `json:"conversations"`
			ActiveThread  string             `json:"active_thread,omitempty"`
		}{Conversations: make([]conversationResp, 0, len(threads)), ActiveThread: active}
		for _, t := range threads {
			out.Conversations = append(out.Conversations, conversationFrom(t, false))
		}
		writeJSON(w, http.StatusOK, out)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ActivateHandler switches the caller's active thread.
type ActivateHandler struct {
	Store  *store.Store
	Logger *slog.Logger
}

func (h ActivateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	thread, err := h.Store.SwitchActive(identity, r.PathValue("id"))
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationFrom(thread, true))
}
