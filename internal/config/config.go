// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the HTTP
// server, logging, storage, Slack, the generative service, and the reply
// pipeline itself.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/slacker/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings for the admin API.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SlackConfig holds the Slack Web API and Events API settings.
type SlackConfig struct {
	BotToken      string        // SLACK_BOT_TOKEN
	SigningSecret string        // SLACK_SIGNING_SECRET; empty disables verification
	APIURL        string        // SLACK_API_URL; empty uses the slack-go default
	Timeout       time.Duration // SLACK_TIMEOUT
}

// LLMConfig selects and configures the generative text service.
type LLMConfig struct {
	Provider        string        // gemini|openai|anthropic
	APIKey          string        // LLM_API_KEY, or the provider-specific key
	BaseURL         string        // LLM_BASE_URL; empty uses the provider default
	Model           string        // LLM_MODEL for generation
	ClassifierModel string        // LLM_CLASSIFIER_MODEL; defaults to Model
	Timeout         time.Duration // LLM_TIMEOUT (client-level)
	MaxTokens       int           // LLM_MAX_TOKENS
}

// PipelineConfig controls the orchestrator and its worker pool.
type PipelineConfig struct {
	AllowedIntents []string // PIPELINE_ALLOWED_INTENTS
	DefaultIntent  string   // PIPELINE_DEFAULT_INTENT, used when the classifier fails
	HistoryLimit   int      // PIPELINE_HISTORY_LIMIT
	Workers        int      // PIPELINE_WORKERS
	QueueSize      int      // PIPELINE_QUEUE_SIZE
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for the admin API

	// Storage
	DBPath string // SQLite path

	// Rate limiting (ingress)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Ingress dedupe
	EventDedupeTTL time.Duration // how long a delivery id is remembered

	// Observability
	OTEL OTELConfig

	// Integrations
	Slack SlackConfig
	LLM   LLMConfig

	// Classification / generation
	ClassifierStrategy    string // heuristic|generative|auto
	SystemPrompt          string // GENERATOR_SYSTEM_PROMPT; empty uses the built-in prompt
	GeneratorMaxReplyRune int    // GENERATOR_MAX_REPLY_RUNES

	Pipeline PipelineConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	provider := strings.ToLower(getenv("LLM_PROVIDER", "gemini"))

	cfg := Config{
		// Server
		Port:              getenv("PORT", "3000"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBPath: getenv("DB_PATH", "slacker.db"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		EventDedupeTTL: getdur("EVENT_DEDUPE_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "slacker"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},

		Slack: SlackConfig{
			BotToken:      getenv("SLACK_BOT_TOKEN", ""),
			SigningSecret: getenv("SLACK_SIGNING_SECRET", ""),
			APIURL:        getenv("SLACK_API_URL", ""),
			Timeout:       getdur("SLACK_TIMEOUT", 10*time.Second),
		},

		LLM: LLMConfig{
			Provider:        provider,
			APIKey:          sysutil.FirstNonEmpty(os.Getenv("LLM_API_KEY"), os.Getenv(providerKeyEnv(provider))),
			BaseURL:         getenv("LLM_BASE_URL", ""),
			Model:           getenv("LLM_MODEL", defaultModel(provider)),
			ClassifierModel: getenv("LLM_CLASSIFIER_MODEL", ""),
			Timeout:         getdur("LLM_TIMEOUT", 30*time.Second),
			MaxTokens:       getint("LLM_MAX_TOKENS", 1024),
		},

		ClassifierStrategy:    strings.ToLower(getenv("CLASSIFIER_STRATEGY", "auto")),
		SystemPrompt:          getenv("GENERATOR_SYSTEM_PROMPT", ""),
		GeneratorMaxReplyRune: getint("GENERATOR_MAX_REPLY_RUNES", 3000),

		Pipeline: PipelineConfig{
			AllowedIntents: splitCSV(strings.ToLower(getenv("PIPELINE_ALLOWED_INTENTS", "question,consultation"))),
			DefaultIntent:  strings.ToLower(getenv("PIPELINE_DEFAULT_INTENT", "question")),
			HistoryLimit:   getint("PIPELINE_HISTORY_LIMIT", 10),
			Workers:        getint("PIPELINE_WORKERS", 4),
			QueueSize:      getint("PIPELINE_QUEUE_SIZE", 100),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.LLM.ClassifierModel == "" {
		cfg.LLM.ClassifierModel = cfg.LLM.Model
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.EventDedupeTTL <= 0 {
		return cfg, errors.New("EVENT_DEDUPE_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	if cfg.Slack.Timeout <= 0 {
		return cfg, errors.New("SLACK_TIMEOUT must be > 0")
	}
	switch cfg.LLM.Provider {
	case "gemini", "openai", "anthropic":
	default:
		return cfg, errors.New("LLM_PROVIDER must be one of: gemini, openai, anthropic")
	}
	if cfg.LLM.Timeout <= 0 {
		return cfg, errors.New("LLM_TIMEOUT must be > 0")
	}
	if cfg.LLM.MaxTokens <= 0 {
		return cfg, errors.New("LLM_MAX_TOKENS must be > 0")
	}
	switch cfg.ClassifierStrategy {
	case "heuristic", "generative", "auto":
	default:
		return cfg, errors.New("CLASSIFIER_STRATEGY must be one of: heuristic, generative, auto")
	}
	if cfg.ClassifierStrategy == "generative" && cfg.LLM.APIKey == "" {
		return cfg, errors.New("CLASSIFIER_STRATEGY=generative requires an LLM API key")
	}
	if cfg.GeneratorMaxReplyRune < 0 {
		return cfg, errors.New("GENERATOR_MAX_REPLY_RUNES must be >= 0")
	}
	if len(cfg.Pipeline.AllowedIntents) == 0 {
		return cfg, errors.New("PIPELINE_ALLOWED_INTENTS must not be empty")
	}
	for _, in := range cfg.Pipeline.AllowedIntents {
		if !validIntent(in) {
			return cfg, errors.New("PIPELINE_ALLOWED_INTENTS must only contain: question, consultation, chat")
		}
	}
	if !validIntent(cfg.Pipeline.DefaultIntent) {
		return cfg, errors.New("PIPELINE_DEFAULT_INTENT must be one of: question, consultation, chat")
	}
	if cfg.Pipeline.HistoryLimit < 0 {
		return cfg, errors.New("PIPELINE_HISTORY_LIMIT must be >= 0")
	}
	if cfg.Pipeline.Workers < 1 {
		return cfg, errors.New("PIPELINE_WORKERS must be >= 1")
	}
	if cfg.Pipeline.QueueSize < 1 {
		return cfg, errors.New("PIPELINE_QUEUE_SIZE must be >= 1")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// providerKeyEnv names the vendor-specific API key variable checked when
// LLM_API_KEY is unset.
func providerKeyEnv(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

func defaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	case "anthropic":
		return "claude-3-5-haiku-latest"
	default:
		return "gemini-2.5-flash"
	}
}

func validIntent(s string) bool {
	switch s {
	case "question", "consultation", "chat":
		return true
	}
	return false
}
