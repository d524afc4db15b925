package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/foundry-kitchen/concierge/pkg/gateway/config"
)

func corsConfig(origins ...string) config.Config {
	cfg := config.Config{CORSAllowedOrigins: make(map[string]struct{})}
	for _, o := range origins {
		cfg.CORSAllowedOrigins[o] = struct{}{}
	}
	return cfg
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSPreflightAllowed(t *testing.T) {
	h := CORS(corsConfig("https://app.foundrykitchen.dev"), okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/v1/utterances", nil)
	req.Header.Set("Origin", "https://app.foundrykitchen.dev")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.foundrykitchen.dev" {
		t.Errorf("allow-origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != corsAllowedMethods {
		t.Errorf("allow-methods = %q", got)
	}
}

func TestCORSPreflightDenied(t *testing.T) {
	cases := []struct {
		name   string
		cfg    config.Config
		origin string
	}{
		{"unlisted origin", corsConfig("https://app.foundrykitchen.dev"), "https://evil.example"},
		{"empty allowlist", corsConfig(), "https://app.foundrykitchen.dev"},
		{"no origin header", corsConfig("https://app.foundrykitchen.dev"), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := CORS(tc.cfg, okHandler())
			req := httptest.NewRequest(http.MethodOptions, "/v1/utterances", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", rec.Code)
			}
		})
	}
}

func TestCORSSimpleRequestHeaders(t *testing.T) {
	h := CORS(corsConfig("https://app.foundrykitchen.dev"), okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	req.Header.Set("Origin", "https://app.foundrykitchen.dev")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.foundrykitchen.dev" {
		t.Errorf("allow-origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != corsExposedHeaders {
		t.Errorf("expose-headers = %q", got)
	}
}

func TestCORSUnlistedOriginGetsNoHeaders(t *testing.T) {
	h := CORS(corsConfig("https://app.foundrykitchen.dev"), okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// Request proceeds but without CORS grants.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin = %q, want unset", got)
	}
}
