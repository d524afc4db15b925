package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/foundry-kitchen/concierge/pkg/core/types"
	"github.com/foundry-kitchen/concierge/pkg/gateway/config"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

// fakeGroq emulates the chat completions endpoint with a canned reply.
func fakeGroq(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		body, _ := json.Marshal(map[string]any{
			"model": "m",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 8, "completion_tokens": 4, "total_tokens": 12},
		})
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, groqURL string) config.Config {
	t.Helper()
	return config.Config{
		Addr:               "127.0.0.1:0",
		AuthMode:           config.AuthModeRequired,
		APIKeys:            map[string]string{"ck_1": "alice"},
		MaxBodyBytes:       1 << 20,
		MaxAudioBytes:      16 << 20,
		CORSAllowedOrigins: map[string]struct{}{},
		GroqAPIKey:         "gsk_test",
		GroqBaseURL:        groqURL,
		Temperature:        0.2,
		ProviderTimeout:    10 * time.Second,
		ToolRounds:         1,
		ToolTimeout:        5 * time.Second,
		ShopBaseURL:        "http://127.0.0.1:9/api",
		SilenceDeadband:    3,
		SilenceGrace:       2 * time.Second,
		SilenceTick:        50 * time.Millisecond,
		ReadHeaderTimeout:  10 * time.Second,
		ReadTimeout:        30 * time.Second,
	}
}

func newTestServer(t *testing.T, groqURL string) *httptest.Server {
	t.Helper()
	s, err := New(testConfig(t, groqURL), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	return resp, buf.Bytes()
}

func TestHealthEndpoints(t *testing.T) {
	groq := fakeGroq(t, "hi")
	srv := newTestServer(t, groq.URL)

	resp, body := doJSON(t, srv, http.MethodGet, "/healthz", "", "")
	if resp.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Fatalf("healthz: %d %q", resp.StatusCode, body)
	}

	resp, body = doJSON(t, srv, http.MethodGet, "/readyz", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz: %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestConversationsRequireToken(t *testing.T) {
	groq := fakeGroq(t, "hi")
	srv := newTestServer(t, groq.URL)

	resp, _ := doJSON(t, srv, http.MethodPost, "/v1/conversations", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, srv, http.MethodPost, "/v1/conversations", "ck_bogus", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", resp.StatusCode)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	groq := fakeGroq(t, "Try the birria tacos at El Fuego.")
	srv := newTestServer(t, groq.URL)

	resp, body := doJSON(t, srv, http.MethodPost, "/v1/conversations", "ck_1", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", resp.StatusCode, body)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
		t.Fatalf("create body: %s", body)
	}

	resp, body = doJSON(t, srv, http.MethodPost,
		"/v1/conversations/"+created.ID+"/messages", "ck_1", `{"text":"recommend tacos"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("message: %d %s", resp.StatusCode, body)
	}
	var msg struct {
		ThreadID string       `json:"thread_id"`
		Turns    []types.Turn `json:"turns"`
		Usage    *types.Usage `json:"usage"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.ThreadID != created.ID {
		t.Errorf("thread_id = %q", msg.ThreadID)
	}
	if len(msg.Turns) != 2 || msg.Turns[1].Content != "Try the birria tacos at El Fuego." {
		t.Fatalf("turns = %+v", msg.Turns)
	}
	if msg.Usage == nil || msg.Usage.TotalTokens != 12 {
		t.Errorf("usage = %+v", msg.Usage)
	}

	// Listing shows the thread with its title derived from the first user turn.
	resp, body = doJSON(t, srv, http.MethodGet, "/v1/conversations", "ck_1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d", resp.StatusCode)
	}
	var listing struct {
		Conversations []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"conversations"`
		ActiveThread string `json:"active_thread"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatal(err)
	}
	if len(listing.Conversations) != 1 || listing.Conversations[0].Title != "recommend tacos" {
		t.Fatalf("listing = %+v", listing)
	}
	if listing.ActiveThread != created.ID {
		t.Errorf("active_thread = %q", listing.ActiveThread)
	}
}

func TestActivateRoute(t *testing.T) {
	groq := fakeGroq(t, "hi")
	srv := newTestServer(t, groq.URL)

	_, first := doJSON(t, srv, http.MethodPost, "/v1/conversations", "ck_1", "")
	_, _ = doJSON(t, srv, http.MethodPost, "/v1/conversations", "ck_1", "")
	var thread struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(first, &thread); err != nil {
		t.Fatal(err)
	}

	resp, body := doJSON(t, srv, http.MethodPost, "/v1/conversations/"+thread.ID+"/activate", "ck_1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate: %d %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, srv, http.MethodGet, "/v1/conversations", "ck_1", "")
	var listing struct {
		ActiveThread string `json:"active_thread"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatal(err)
	}
	if listing.ActiveThread != thread.ID {
		t.Errorf("active_thread = %q, want %q", listing.ActiveThread, thread.ID)
	}
}

func TestDisabledAuthServesConversations(t *testing.T) {
	groq := fakeGroq(t, "hello there")
	cfg := testConfig(t, groq.URL)
	cfg.AuthMode = config.AuthModeDisabled
	cfg.APIKeys = nil

	s, err := New(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	resp, body := doJSON(t, srv, http.MethodPost, "/v1/conversations", "", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create without token: %d %s", resp.StatusCode, body)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
		t.Fatalf("create body: %s", body)
	}

	resp, body = doJSON(t, srv, http.MethodPost,
		"/v1/conversations/"+created.ID+"/messages", "", `{"text":"hi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("message without token: %d %s", resp.StatusCode, body)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	groq := fakeGroq(t, "hi")
	srv := newTestServer(t, groq.URL)

	resp, _ := doJSON(t, srv, http.MethodGet, "/v1/nothing", "ck_1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestSQLitePersistenceAcrossRestarts(t *testing.T) {
	groq := fakeGroq(t, "noted")
	cfg := testConfig(t, groq.URL)
	cfg.StorePath = t.TempDir() + "/concierge.db"

	s1, err := New(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	srv1 := httptest.NewServer(s1.Handler())
	resp, body := doJSON(t, srv1, http.MethodPost, "/v1/conversations", "ck_1", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}
	resp, _ = doJSON(t, srv1, http.MethodPost,
		"/v1/conversations/"+created.ID+"/messages", "ck_1", `{"text":"remember this"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("message: %d", resp.StatusCode)
	}
	srv1.Close()
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := New(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	srv2 := httptest.NewServer(s2.Handler())
	defer srv2.Close()

	resp, body = doJSON(t, srv2, http.MethodGet, "/v1/conversations", "ck_1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list after restart: %d", resp.StatusCode)
	}
	var listing struct {
		Conversations []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"conversations"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, c := range listing.Conversations {
		if c.ID == created.ID && c.Title == "remember this" {
			found = true
		}
	}
	if !found {
		t.Fatalf("thread did not survive restart: %+v", listing)
	}
}
