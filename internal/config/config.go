// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Archive backends.
const (
	ArchiveNone  = "none"
	ArchiveDrive = "drive"
	ArchiveGCS   = "gcs"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	GRPCPort    string // empty disables the gRPC health server
	SessionTTL  time.Duration
	Debug       bool

	Gemini  GeminiConfig
	Retry   RetryConfig
	Ingest  IngestConfig
	Archive ArchiveConfig
	Limits  RateLimitConfig
}

// GeminiConfig configures the content-generation client.
type GeminiConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	SpeechModel string
	Voice       string
	Timeout     time.Duration
}

// RetryConfig tunes the two backoff profiles.
type RetryConfig struct {
	StandardMax  int
	StandardBase time.Duration
	FastMax      int
	FastBase     time.Duration
}

// IngestConfig bounds uploads and link fetches.
type IngestConfig struct {
	LinkFetchTimeout time.Duration
	MaxUploadBytes   int64
	ReadLimit        int
}

// ArchiveConfig selects and configures the archival backend.
type ArchiveConfig struct {
	Backend         string
	DriveFolderID   string
	CredentialsFile string
	DriveAPIKey     string
	GCSBucket       string
}

// RateLimitConfig limits content-generating requests per user.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/schemaquest.db"),
		GRPCPort:    getEnv("GRPC_PORT", ""),
		SessionTTL:  getEnvDuration("SESSION_TTL", 24*time.Hour),
		Debug:       getEnvBool("DEBUG", false),
		Gemini: GeminiConfig{
			APIKey:      getEnv("GEMINI_API_KEY", ""),
			BaseURL:     getEnv("GEMINI_BASE_URL", ""),
			Model:       getEnv("GEMINI_MODEL", "gemini-3-flash-preview"),
			SpeechModel: getEnv("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
			Voice:       getEnv("GEMINI_VOICE", "Kore"),
			Timeout:     getEnvDuration("GEMINI_TIMEOUT", 120*time.Second),
		},
		Retry: RetryConfig{
			StandardMax:  getEnvInt("RETRY_STANDARD_MAX", 5),
			StandardBase: getEnvDuration("RETRY_STANDARD_BASE", 5*time.Second),
			FastMax:      getEnvInt("RETRY_FAST_MAX", 2),
			FastBase:     getEnvDuration("RETRY_FAST_BASE", 3*time.Second),
		},
		Ingest: IngestConfig{
			LinkFetchTimeout: getEnvDuration("LINK_FETCH_TIMEOUT", 10*time.Second),
			MaxUploadBytes:   int64(getEnvInt("MAX_UPLOAD_BYTES", 5<<20)),
			ReadLimit:        getEnvInt("INGEST_READ_LIMIT", 10000),
		},
		Archive: ArchiveConfig{
			Backend:         strings.ToLower(getEnv("ARCHIVE_BACKEND", ArchiveNone)),
			DriveFolderID:   getEnv("DRIVE_FOLDER_ID", ""),
			CredentialsFile: getEnv("DRIVE_CREDENTIALS_FILE", ""),
			DriveAPIKey:     getEnv("DRIVE_API_KEY", ""),
			GCSBucket:       getEnv("GCS_BUCKET", ""),
		},
		Limits: RateLimitConfig{
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 10),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be > 0")
	}
	if c.Gemini.APIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	if c.Gemini.Timeout <= 0 {
		return errors.New("GEMINI_TIMEOUT must be > 0")
	}
	if c.Retry.StandardMax < 0 || c.Retry.FastMax < 0 {
		return errors.New("retry counts cannot be negative")
	}
	if c.Retry.StandardBase <= 0 || c.Retry.FastBase <= 0 {
		return errors.New("retry base delays must be > 0")
	}
	if c.Ingest.LinkFetchTimeout <= 0 {
		return errors.New("LINK_FETCH_TIMEOUT must be > 0")
	}
	if c.Ingest.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.Ingest.ReadLimit <= 0 {
		return errors.New("INGEST_READ_LIMIT must be > 0")
	}
	if c.Limits.PerMinute <= 0 || c.Limits.Burst <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must be > 0")
	}

	switch c.Archive.Backend {
	case ArchiveNone, "":
	case ArchiveDrive:
		if c.Archive.DriveFolderID == "" {
			return errors.New("DRIVE_FOLDER_ID is required for the drive archive backend")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return errors.New("GCS_BUCKET is required for the gcs archive backend")
		}
	default:
		return fmt.Errorf("unknown ARCHIVE_BACKEND %q", c.Archive.Backend)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	origins := []string{"http://localhost:5173", "http://localhost:3000"}
	if c.FrontendURL != "" {
		origins = append(origins, c.FrontendURL)
	}
	return origins
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
