package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/foundry-kitchen/concierge/pkg/core/voice"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

// LocalIdentity is the identity every request assumes in disabled mode, so a
// single-user deployment still gets conversation storage without tokens.
const LocalIdentity = "local"

type Config struct {
	Addr string

	AuthMode AuthMode
	// APIKeys maps bearer token to the identity it authenticates. CSV entries
	// are either "token=identity" or a bare token, which authenticates as
	// itself.
	APIKeys map[string]string

	MaxBodyBytes  int64
	MaxAudioBytes int64

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Groq (completions and transcription).
	GroqAPIKey         string
	GroqBaseURL        string
	CompletionModel    string
	TranscriptionModel string
	Temperature        float64
	ProviderMaxRetries int
	ProviderTimeout    time.Duration

	// ToolRounds is the number of tool-resolution rounds per user turn.
	ToolRounds  int
	ToolTimeout time.Duration

	// Shop backend for recommendations and orders.
	ShopBaseURL string

	// StorePath is the sqlite file for conversation persistence. Empty keeps
	// conversations in memory only.
	StorePath string

	// Silence segmentation.
	SilenceDeadband int
	SilenceGrace    time.Duration
	SilenceTick     time.Duration

	// Live WebSocket mode (/v1/live).
	LiveMaxFrameBytes      int
	LiveWSPingInterval     time.Duration
	LiveWSWriteTimeout     time.Duration
	LiveMaxSessionDuration time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                   envOr("CONCIERGE_ADDR", ":8080"),
		AuthMode:               AuthMode(envOr("CONCIERGE_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                make(map[string]string),
		MaxBodyBytes:           envInt64Or("CONCIERGE_MAX_BODY_BYTES", 1<<20),   // 1 MiB
		MaxAudioBytes:          envInt64Or("CONCIERGE_MAX_AUDIO_BYTES", 16<<20), // 16 MiB
		CORSAllowedOrigins:     make(map[string]struct{}),
		GroqAPIKey:             strings.TrimSpace(os.Getenv("CONCIERGE_GROQ_API_KEY")),
		GroqBaseURL:            envOr("CONCIERGE_GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		CompletionModel:        envOr("CONCIERGE_COMPLETION_MODEL", "meta-llama/llama-4-scout-17b-16e-instruct"),
		TranscriptionModel:     envOr("CONCIERGE_TRANSCRIPTION_MODEL", "whisper-large-v3-turbo"),
		Temperature:            envFloat64Or("CONCIERGE_TEMPERATURE", 0.2),
		ProviderMaxRetries:     envIntOr("CONCIERGE_PROVIDER_MAX_RETRIES", 2),
		ProviderTimeout:        envDurationOr("CONCIERGE_PROVIDER_TIMEOUT", 60*time.Second),
		ToolRounds:             envIntOr("CONCIERGE_TOOL_ROUNDS", 1),
		ToolTimeout:            envDurationOr("CONCIERGE_TOOL_TIMEOUT", 15*time.Second),
		ShopBaseURL:            envOr("CONCIERGE_SHOP_BASE_URL", "http://localhost:3001/api"),
		StorePath:              strings.TrimSpace(os.Getenv("CONCIERGE_STORE_PATH")),
		SilenceDeadband:        envIntOr("CONCIERGE_SILENCE_DEADBAND", voice.DefaultDeadband),
		SilenceGrace:           envDurationOr("CONCIERGE_SILENCE_GRACE", voice.DefaultGrace),
		SilenceTick:            envDurationOr("CONCIERGE_SILENCE_TICK", 50*time.Millisecond),
		LiveMaxFrameBytes:      envIntOr("CONCIERGE_LIVE_MAX_FRAME_BYTES", 64*1024),
		LiveWSPingInterval:     envDurationOr("CONCIERGE_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:     envDurationOr("CONCIERGE_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveMaxSessionDuration: envDurationOr("CONCIERGE_LIVE_MAX_SESSION_DURATION", 30*time.Minute),
		ReadHeaderTimeout:      envDurationOr("CONCIERGE_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:            envDurationOr("CONCIERGE_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:    envDurationOr("CONCIERGE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("CONCIERGE_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, entry := range splitCSV(os.Getenv("CONCIERGE_API_KEYS")) {
		token, identity, found := strings.Cut(entry, "=")
		token = strings.TrimSpace(token)
		identity = strings.TrimSpace(identity)
		if token == "" {
			continue
		}
		if !found || identity == "" {
			identity = token
		}
		cfg.APIKeys[token] = identity
	}

	for _, origin := range splitCSV(os.Getenv("CONCIERGE_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("CONCIERGE_MAX_BODY_BYTES must be > 0")
	}
	if cfg.MaxAudioBytes <= 0 {
		return Config{}, fmt.Errorf("CONCIERGE_MAX_AUDIO_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.GroqBaseURL) == "" {
		return Config{}, fmt.Errorf("CONCIERGE_GROQ_BASE_URL must not be empty")
	}
	if strings.TrimSpace(cfg.CompletionModel) == "" {
		return Config{}, fmt.Errorf("CONCIERGE_COMPLETION_MODEL must not be empty")
	}
	if strings.TrimSpace(cfg.TranscriptionModel) == "" {
		return Config{}, fmt.Errorf("CONCIERGE_TRANSCRIPTION_MODEL must not be empty")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return Config{}, fmt.Errorf("CONCIERGE_TEMPERATURE must be in [0, 2]")
	}
	if cfg.ProviderMaxRetries < 0 {
		return Config{}, fmt.Errorf("CONCIERGE_PROVIDER_MAX_RETRIES must be >= 0")
	}
	if cfg.ProviderTimeout <= 0 {
		return Config{}, fmt.Errorf("CONCIERGE_PROVIDER_TIMEOUT must be > 0")
	}
	if cfg.ToolRounds <= 0 {
		return Config{}, fmt.Errorf("CONCIERGE_TOOL_ROUNDS must be > 0")
	}
	if cfg.ToolTimeout <= 0 {
		return Config{}, fmt.Errorf("CONCIERGE_TOOL_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.ShopBaseURL) == "" {
		return Config{}, fmt.Errorf("CONCIERGE_SHOP_BASE_URL must not be empty")
	}
	if cfg.SilenceDeadband < 2 || cfg.SilenceDeadband > 5 {
		return Config{}, fmt.Errorf("CONCIERGE_SILENCE_DEADBAND must be in [2, 5]")
	}
	if cfg.SilenceGrace < 1500*time.Millisecond || cfg.SilenceGrace > 3*time.Second {
		return Config{}, fmt.Errorf("CONCIERGE_SILENCE_GRACE must be in [1.5s, 3s]")
	}
	if cfg.SilenceTick <= 0 {
		return Config{}, fmt.Errorf("CONCIERGE_SILENCE_TICK must be > 0")
	}
	if cfg.LiveMaxFrameBytes <= 0 {
		return Config{}, fmt.Errorf("CONCIERGE_LIVE_MAX_FRAME_BYTES must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("CONCIERGE_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("CONCIERGE_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("CONCIERGE_LIVE_MAX_SESSION_DURATION must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("CONCIERGE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("CONCIERGE_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("CONCIERGE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("CONCIERGE_API_KEYS must be set when CONCIERGE_AUTH_MODE=required")
	}
	if cfg.GroqAPIKey == "" {
		return Config{}, fmt.Errorf("CONCIERGE_GROQ_API_KEY must be set")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
