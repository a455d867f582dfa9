// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MaxContextWindow is the upper bound on messages sent as conversational context.
const MaxContextWindow = 10

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	Backend     BackendConfig
	Interview   InterviewConfig
	Progress    ProgressConfig
	SSE         SSEConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
	TraceFile   string
	Metrics     bool
}

// BackendConfig holds collaborator endpoints.
type BackendConfig struct {
	ReasoningURL      string
	ReasoningGRPCAddr string // optional: selects the gRPC reasoning transport
	ResearchURL       string
	CheckoutURL       string
	TranscribeURL     string
	ReportStreamURL   string
	RequestTimeout    time.Duration
}

// InterviewConfig controls the interview engine.
type InterviewConfig struct {
	GreetingDelay   time.Duration
	ExchangeTimeout time.Duration
	FinalizeTimeout time.Duration
	ContextWindow   int
	MaxQuestions    int // 0 disables the local question cap
	IdleTTL         time.Duration
	SweepInterval   time.Duration
	RestartURL      string
	MaxAudioBytes   int64
}

// ProgressConfig controls the report progress monitor.
type ProgressConfig struct {
	SimulatedStepInterval time.Duration
}

// SSEConfig controls server-sent event streams.
type SSEConfig struct {
	KeepaliveInterval  time.Duration
	RetryDelay         time.Duration
	MaxRequestBodySize int64
}

// RateLimitConfig controls per-session submission throttling.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	window := getEnvInt("CONTEXT_WINDOW", MaxContextWindow)
	if window <= 0 || window > MaxContextWindow {
		window = MaxContextWindow
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/funnel.db"),
		Backend: BackendConfig{
			ReasoningURL:      getEnv("REASONING_URL", "http://localhost:8000"),
			ReasoningGRPCAddr: getEnv("REASONING_GRPC_ADDR", ""),
			ResearchURL:       getEnv("RESEARCH_URL", "http://localhost:8000"),
			CheckoutURL:       getEnv("CHECKOUT_URL", "http://localhost:8000"),
			TranscribeURL:     getEnv("TRANSCRIBE_URL", "http://localhost:8000"),
			ReportStreamURL:   getEnv("REPORT_STREAM_URL", "http://localhost:8000"),
			RequestTimeout:    getEnvDuration("BACKEND_REQUEST_TIMEOUT", 30*time.Second),
		},
		Interview: InterviewConfig{
			GreetingDelay:   getEnvDuration("GREETING_DELAY", 500*time.Millisecond),
			ExchangeTimeout: getEnvDuration("EXCHANGE_TIMEOUT", 60*time.Second),
			FinalizeTimeout: getEnvDuration("FINALIZE_TIMEOUT", 15*time.Second),
			ContextWindow:   window,
			MaxQuestions:    getEnvInt("MAX_QUESTIONS", 0),
			IdleTTL:         getEnvDuration("SESSION_IDLE_TTL", 2*time.Hour),
			SweepInterval:   getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
			RestartURL:      getEnv("RESTART_URL", "/quiz"),
			MaxAudioBytes:   int64(getEnvInt("MAX_AUDIO_BYTES", 10<<20)),
		},
		Progress: ProgressConfig{
			SimulatedStepInterval: getEnvDuration("SIMULATED_STEP_INTERVAL", 3*time.Second),
		},
		SSE: SSEConfig{
			KeepaliveInterval:  getEnvDuration("SSE_KEEPALIVE", 10*time.Second),
			RetryDelay:         getEnvDuration("SSE_RETRY", 5*time.Second),
			MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY", 1<<20)),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 20),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 5),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 10),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
		},
		TraceFile: getEnv("TRACE_FILE", ""),
		Metrics:   getEnvBool("METRICS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Backend.ReasoningURL == "" && c.Backend.ReasoningGRPCAddr == "" {
		return fmt.Errorf("one of REASONING_URL or REASONING_GRPC_ADDR must be set")
	}
	if c.Backend.ReportStreamURL == "" {
		return fmt.Errorf("REPORT_STREAM_URL cannot be empty")
	}
	if c.Interview.ExchangeTimeout <= 0 {
		return fmt.Errorf("EXCHANGE_TIMEOUT must be > 0")
	}
	if c.Interview.FinalizeTimeout <= 0 {
		return fmt.Errorf("FINALIZE_TIMEOUT must be > 0")
	}
	if c.Interview.MaxQuestions < 0 {
		return fmt.Errorf("MAX_QUESTIONS must be >= 0")
	}
	if c.Progress.SimulatedStepInterval <= 0 {
		return fmt.Errorf("SIMULATED_STEP_INTERVAL must be > 0")
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go duration strings ("750ms", "2m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
