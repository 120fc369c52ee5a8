package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBPath != "./data/schemaquest.db" {
		t.Fatalf("unexpected server defaults: %+v", cfg)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.Gemini.Model != "gemini-3-flash-preview" || cfg.Gemini.Voice != "Kore" || cfg.Gemini.Timeout != 120*time.Second {
		t.Fatalf("unexpected gemini defaults: %+v", cfg.Gemini)
	}
	want := RetryConfig{StandardMax: 5, StandardBase: 5 * time.Second, FastMax: 2, FastBase: 3 * time.Second}
	if cfg.Retry != want {
		t.Fatalf("Retry = %+v, want %+v", cfg.Retry, want)
	}
	if cfg.Ingest.ReadLimit != 10000 || cfg.Ingest.MaxUploadBytes != 5<<20 || cfg.Ingest.LinkFetchTimeout != 10*time.Second {
		t.Fatalf("unexpected ingest defaults: %+v", cfg.Ingest)
	}
	if cfg.Archive.Backend != ArchiveNone {
		t.Fatalf("Archive.Backend = %q", cfg.Archive.Backend)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("empty FRONTEND_URL should be development")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("RETRY_FAST_MAX", "4")
	t.Setenv("DEBUG", "yes")
	t.Setenv("ARCHIVE_BACKEND", "GCS")
	t.Setenv("GCS_BUCKET", "harvest")
	t.Setenv("FRONTEND_URL", "https://quest.example.com")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.SessionTTL != 90*time.Minute || cfg.Retry.FastMax != 4 || !cfg.Debug {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Archive.Backend != ArchiveGCS || cfg.Archive.GCSBucket != "harvest" {
		t.Fatalf("Archive = %+v", cfg.Archive)
	}
	if cfg.Limits.Burst != 10 {
		t.Fatalf("malformed int should fall back, got %d", cfg.Limits.Burst)
	}
	if cfg.IsDevelopment() {
		t.Fatal("public FRONTEND_URL should not be development")
	}
	origins := cfg.AllowedOrigins()
	if origins[len(origins)-1] != "https://quest.example.com" {
		t.Fatalf("AllowedOrigins = %v", origins)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:       "8080",
			DBPath:     "db",
			SessionTTL: time.Hour,
			Gemini:     GeminiConfig{APIKey: "k", Timeout: time.Second},
			Retry:      RetryConfig{StandardMax: 5, StandardBase: time.Second, FastMax: 2, FastBase: time.Second},
			Ingest:     IngestConfig{LinkFetchTimeout: time.Second, MaxUploadBytes: 1, ReadLimit: 1},
			Limits:     RateLimitConfig{PerMinute: 1, Burst: 1},
			Archive:    ArchiveConfig{Backend: ArchiveNone},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing key", func(c *Config) { c.Gemini.APIKey = "" }, "GEMINI_API_KEY"},
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"negative retries", func(c *Config) { c.Retry.FastMax = -1 }, "retry counts"},
		{"drive without folder", func(c *Config) { c.Archive.Backend = ArchiveDrive }, "DRIVE_FOLDER_ID"},
		{"gcs without bucket", func(c *Config) { c.Archive.Backend = ArchiveGCS }, "GCS_BUCKET"},
		{"unknown backend", func(c *Config) { c.Archive.Backend = "s3" }, "unknown ARCHIVE_BACKEND"},
		{"zero read limit", func(c *Config) { c.Ingest.ReadLimit = 0 }, "INGEST_READ_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
