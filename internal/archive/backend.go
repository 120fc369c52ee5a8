package archive

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"
)

// Backend names accepted by New.
const (
	BackendNone  = "none"
	BackendDrive = "drive"
	BackendGCS   = "gcs"
)

// Config selects and configures a backend.
type Config struct {
	Backend         string
	DriveFolderID   string
	CredentialsFile string
	APIKey          string
	GCSBucket       string
}

func (c Config) clientOptions() []option.ClientOption {
	switch {
	case c.CredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(c.CredentialsFile)}
	case c.APIKey != "":
		return []option.ClientOption{option.WithAPIKey(c.APIKey)}
	default:
		return nil
	}
}

// New builds the configured archiver. It returns nil, nil for BackendNone.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Archiver, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendDrive:
		d, err := NewDrive(ctx, cfg.DriveFolderID, logger, cfg.clientOptions()...)
		if err != nil {
			return nil, err
		}
		return d, nil
	case BackendGCS:
		g, err := NewGCS(ctx, cfg.GCSBucket, logger, cfg.clientOptions()...)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}
