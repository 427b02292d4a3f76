// Package config loads AgentDeck configuration from the environment,
// with a .env file honored in development.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the AgentDeck control plane.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
	Runtime   RuntimeConfig
	Scheduler SchedulerConfig
	Retention RetentionConfig
	// CORSOrigins is the comma-separated allow list for browser and
	// websocket origins. Empty allows any origin (development).
	CORSOrigins string
}

type DatabaseConfig struct {
	// URL selects Postgres when set; empty falls back to the
	// snapshot-backed memory store.
	URL            string
	MaxConnections int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type AuthConfig struct {
	JWTSecret     string
	RefreshSecret string
	Issuer        string
	// RuntimeSecret signs the service tokens the agent runtime uses
	// to call back in. Empty disables the runtime provider.
	RuntimeSecret string
}

type RuntimeConfig struct {
	// WebhookURL is where tasks are dispatched. Empty means local
	// acknowledgement only.
	WebhookURL string
	Secret     string
}

type SchedulerConfig struct {
	Enabled         bool
	IntervalSeconds int
}

type RetentionConfig struct {
	Enabled           bool
	IntervalMinutes   int
	TaskRetentionDays int
	// ArchiveDir enables archive-before-purge when set.
	ArchiveDir      string
	CompressArchive bool
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is loaded first when
// present.
func Load() *Config {
	_ = godotenv.Load()

	jwtSecret := envStr("AGENTDECK_JWT_SECRET", "dev-secret-change-me")
	return &Config{
		Port:        envInt("AGENTDECK_PORT", 8080),
		Version:     envStr("AGENTDECK_VERSION", "0.1.0"),
		CORSOrigins: envStr("AGENTDECK_CORS_ORIGINS", ""),
		Database: DatabaseConfig{
			URL:            envStr("AGENTDECK_DATABASE_URL", ""),
			MaxConnections: envInt("AGENTDECK_DATABASE_MAX_CONNECTIONS", 25),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "agentdeck-control-plane"),
		},
		Auth: AuthConfig{
			JWTSecret:     jwtSecret,
			RefreshSecret: envStr("AGENTDECK_REFRESH_SECRET", jwtSecret),
			Issuer:        envStr("AGENTDECK_JWT_ISSUER", "agentdeck"),
			RuntimeSecret: envStr("AGENTDECK_RUNTIME_SECRET", ""),
		},
		Runtime: RuntimeConfig{
			WebhookURL: envStr("AGENTDECK_RUNTIME_WEBHOOK_URL", ""),
			Secret:     envStr("AGENTDECK_RUNTIME_WEBHOOK_SECRET", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:         envBool("AGENTDECK_SCHEDULER_ENABLED", true),
			IntervalSeconds: envInt("AGENTDECK_SCHEDULER_INTERVAL_SECONDS", 15),
		},
		Retention: RetentionConfig{
			Enabled:           envBool("AGENTDECK_RETENTION_ENABLED", true),
			IntervalMinutes:   envInt("AGENTDECK_RETENTION_INTERVAL_MINUTES", 60),
			TaskRetentionDays: envInt("AGENTDECK_TASK_RETENTION_DAYS", 30),
			ArchiveDir:        envStr("AGENTDECK_ARCHIVE_DIR", ""),
			CompressArchive:   envBool("AGENTDECK_ARCHIVE_COMPRESS", false),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
