// Package server assembles the gateway: providers, tools, orchestrator,
// store, routes, and the middleware chain.
package server

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/foundry-kitchen/concierge/pkg/core"
	"github.com/foundry-kitchen/concierge/pkg/core/providers/groq"
	"github.com/foundry-kitchen/concierge/pkg/core/voice/stt"
	"github.com/foundry-kitchen/concierge/pkg/gateway/config"
	"github.com/foundry-kitchen/concierge/pkg/gateway/handlers"
	"github.com/foundry-kitchen/concierge/pkg/gateway/mw"
	"github.com/foundry-kitchen/concierge/pkg/gateway/orchestrator"
	"github.com/foundry-kitchen/concierge/pkg/gateway/store"
	"github.com/foundry-kitchen/concierge/pkg/gateway/tools"
	"github.com/foundry-kitchen/concierge/pkg/gateway/tools/shopping"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	db           *sql.DB
	store        *store.Store
	orchestrator *orchestrator.Orchestrator
	stt          stt.Provider
}

func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Timeout: cfg.ProviderTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	var provider core.CompletionProvider = groq.New(cfg.GroqAPIKey,
		groq.WithBaseURL(cfg.GroqBaseURL),
		groq.WithHTTPClient(httpClient),
		groq.WithMaxRetries(uint64(cfg.ProviderMaxRetries)),
	)

	transcriber := stt.NewGroqWithClient(cfg.GroqAPIKey, cfg.GroqBaseURL, httpClient)

	shopClient := shopping.NewClient(cfg.ShopBaseURL, &http.Client{Timeout: cfg.ToolTimeout}, logger)
	registry := tools.NewRegistry(logger,
		shopping.NewRecommendations(shopClient),
		shopping.NewOrders(shopClient),
	)

	orch := orchestrator.New(provider, registry, logger, orchestrator.Config{
		Model:       cfg.CompletionModel,
		Temperature: &cfg.Temperature,
		ToolRounds:  cfg.ToolRounds,
	})

	var db *sql.DB
	if cfg.StorePath != "" {
		var err error
		db, err = sql.Open("sqlite3", cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}
	st, err := store.New(db, logger)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		mux:          http.NewServeMux(),
		db:           db,
		store:        st,
		orchestrator: orch,
		stt:          transcriber,
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg})

	s.mux.Handle("/v1/conversations", handlers.ConversationsHandler{
		Store:  s.store,
		Logger: s.logger,
	})
	s.mux.Handle("POST /v1/conversations/{id}/activate", handlers.ActivateHandler{
		Store:  s.store,
		Logger: s.logger,
	})
	s.mux.Handle("POST /v1/conversations/{id}/messages", handlers.MessagesHandler{
		Config:       s.cfg,
		Store:        s.store,
		Orchestrator: s.orchestrator,
		Logger:       s.logger,
	})
	s.mux.Handle("POST /v1/utterances", handlers.UtterancesHandler{
		Config:       s.cfg,
		Store:        s.store,
		Orchestrator: s.orchestrator,
		STT:          s.stt,
		Logger:       s.logger,
	})
	s.mux.Handle("/v1/live", handlers.LiveHandler{
		Config:       s.cfg,
		Store:        s.store,
		Orchestrator: s.orchestrator,
		STT:          s.stt,
		Logger:       s.logger,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Close releases the persistence handle.
func (s *Server) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Store exposes the conversation store, used by integration tests.
func (s *Server) Store() *store.Store { return s.store }
