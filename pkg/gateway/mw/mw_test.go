package mw

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/foundry-kitchen/concierge/pkg/core"
	"github.com/foundry-kitchen/concierge/pkg/gateway/auth"
	"github.com/foundry-kitchen/concierge/pkg/gateway/config"
)

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Errorf("request id = %q, want req_ prefix", seen)
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("header = %q, ctx = %q", got, seen)
	}
}

func TestRequestIDPreservesClientValue(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req_client_supplied")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "req_client_supplied" {
		t.Errorf("request id = %q", seen)
	}
}

func TestAuthRequired(t *testing.T) {
	cfg := config.Config{
		AuthMode: config.AuthModeRequired,
		APIKeys:  map[string]string{"ck_live_1": "alice"},
	}
	var principal *auth.Principal
	h := Auth(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ = auth.PrincipalFrom(r.Context())
	}))

	// Missing token is refused.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}
	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil || env.Error == nil {
		t.Fatalf("no token: body = %s", rec.Body.Bytes())
	}
	if env.Error.Code != core.CodeUnauthenticated {
		t.Errorf("no token: code = %q", env.Error.Code)
	}

	// Unknown token is refused.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer ck_bogus")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", rec.Code)
	}

	// Known token resolves to the mapped identity.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer ck_live_1")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("good token: status = %d", rec.Code)
	}
	if principal == nil || principal.Identity != "alice" {
		t.Errorf("principal = %+v", principal)
	}
}

func TestAuthOptionalPassesAnonymous(t *testing.T) {
	cfg := config.Config{
		AuthMode: config.AuthModeOptional,
		APIKeys:  map[string]string{"ck_live_1": "alice"},
	}
	var called bool
	var identity string
	h := Auth(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		identity = auth.IdentityFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/utterances", nil))
	if !called || rec.Code != http.StatusOK {
		t.Fatalf("anonymous blocked: called=%v status=%d", called, rec.Code)
	}
	if identity != "" {
		t.Errorf("identity = %q, want anonymous", identity)
	}

	// A presented token must still be valid even in optional mode.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/utterances", nil)
	req.Header.Set("Authorization", "Bearer ck_bogus")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token in optional mode: status = %d", rec.Code)
	}
}

func TestAuthDisabledActsAsLocalIdentity(t *testing.T) {
	cfg := config.Config{AuthMode: config.AuthModeDisabled}
	var identity string
	h := Auth(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity = auth.IdentityFrom(r.Context())
	}))

	// No token, bogus token: both serve as the fixed local identity.
	for _, token := range []string{"", "whatever"} {
		identity = ""
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("token %q: status = %d", token, rec.Code)
		}
		if identity != config.LocalIdentity {
			t.Fatalf("token %q: identity = %q, want %q", token, identity, config.LocalIdentity)
		}
	}
}

func TestRecoverTurnsPanicInto500(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := Recover(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAccessLogRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := AccessLog(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/conversations", nil))

	out := buf.String()
	if !strings.Contains(out, "status=201") {
		t.Errorf("log output missing status: %q", out)
	}
	if !strings.Contains(out, "path=/v1/conversations") {
		t.Errorf("log output missing path: %q", out)
	}
}
