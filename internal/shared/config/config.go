package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds client configuration.
type Config struct {
	BackendURL string
	TenantID   string
	UserID     string
	Env        string

	// Request executor tuning.
	MaxAttempts    int
	RetryBaseDelay time.Duration
	AttemptTimeout time.Duration

	// Telemetry batching.
	TelemetryBatchSize int
	TelemetryTimeout   time.Duration

	// Analysis request shaping.
	TruncateLimit int
	ChunkingOn    bool
}

// Load reads configuration from environment variables, with .env files as a
// best-effort local-development fallback.
func Load() Config {
	loadEnvFiles(".env.local", ".env")

	env := normalizeEnv(getEnv("ENV", "development"))
	backendURL := strings.TrimRight(getEnv("MW_BACKEND_URL", "http://localhost:8080"), "/")
	if env == "production" && os.Getenv("MW_BACKEND_URL") == "" {
		log.Fatal("MW_BACKEND_URL is required in production")
	}

	return Config{
		BackendURL:         backendURL,
		TenantID:           getEnv("MW_TENANT_ID", "local"),
		UserID:             getEnv("MW_USER_ID", "anonymous"),
		Env:                env,
		MaxAttempts:        getEnvInt("MW_MAX_ATTEMPTS", 3),
		RetryBaseDelay:     getEnvDuration("MW_RETRY_BASE_DELAY_MS", 1000*time.Millisecond),
		AttemptTimeout:     getEnvDuration("MW_ATTEMPT_TIMEOUT_MS", 30*time.Second),
		TelemetryBatchSize: getEnvInt("MW_TELEMETRY_BATCH_SIZE", 10),
		TelemetryTimeout:   getEnvDuration("MW_TELEMETRY_TIMEOUT_MS", 5*time.Second),
		TruncateLimit:      getEnvInt("MW_TRUNCATE_LIMIT", 12000),
		ChunkingOn:         getEnvBool("MW_CHUNKING", false),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return def
	}
	return time.Duration(parsed) * time.Millisecond
}

func getEnvBool(key string, def bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return def
	}
	return raw == "1" || raw == "true" || raw == "yes"
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	default:
		return "development"
	}
}
