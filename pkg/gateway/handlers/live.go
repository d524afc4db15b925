package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/foundry-kitchen/concierge/pkg/core/voice/stt"
	"github.com/foundry-kitchen/concierge/pkg/gateway/config"
	"github.com/foundry-kitchen/concierge/pkg/gateway/live"
	"github.com/foundry-kitchen/concierge/pkg/gateway/orchestrator"
	"github.com/foundry-kitchen/concierge/pkg/gateway/store"
)

// LiveHandler upgrades to WebSocket and hands the connection to a live voice
// session.
type LiveHandler struct {
	Config       config.Config
	Store        *store.Store
	Orchestrator *orchestrator.Orchestrator
	STT          stt.Provider
	Logger       *slog.Logger
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  16 * 1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" || len(h.Config.CORSAllowedOrigins) == 0 {
				return true
			}
			_, allowed := h.Config.CORSAllowedOrigins[origin]
			return allowed
		},
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	err = live.Run(r.Context(), ws, identity, live.Config{
		SilenceDeadband:    h.Config.SilenceDeadband,
		SilenceGrace:       h.Config.SilenceGrace,
		SilenceTick:        h.Config.SilenceTick,
		MaxFrameBytes:      h.Config.LiveMaxFrameBytes,
		PingInterval:       h.Config.LiveWSPingInterval,
		WriteTimeout:       h.Config.LiveWSWriteTimeout,
		MaxSessionDuration: h.Config.LiveMaxSessionDuration,
		TranscriptionModel: h.Config.TranscriptionModel,
	}, live.Deps{
		Store:        h.Store,
		Orchestrator: h.Orchestrator,
		STT:          h.STT,
		Logger:       h.Logger,
	})
	if err != nil {
		h.Logger.Warn("live session ended with error", "identity", identity, "error", err)
	}
}
