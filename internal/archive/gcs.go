package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ashureev/schema-quest/internal/domain"
)

// GCS uploads into a bucket under harvest/<tier>/.
type GCS struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
	now    func() time.Time
}

// NewGCS creates a bucket archiver.
func NewGCS(ctx context.Context, bucket string, logger *slog.Logger, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GCS{client: client, bucket: bucket, logger: logger, now: time.Now}, nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func objectKey(tier domain.Tier, name string, at time.Time) string {
	return path.Join("harvest", strings.ToLower(string(tier)), at.UTC().Format("20060102T150405Z")+"-"+path.Base(name))
}

func (g *GCS) Archive(ctx context.Context, f File, tier domain.Tier) Result {
	key := objectKey(tier, f.Name, g.now())

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = f.MimeType
	w.Metadata = appProperties(tier)
	w.Metadata["description"] = description(tier)

	if _, err := w.Write(f.Data); err != nil {
		_ = w.Close()
		res := failure(err)
		g.logger.Warn("gcs archive failed", "file", f.Name, "kind", res.ErrorKind, "error", err)
		return res
	}
	if err := w.Close(); err != nil {
		res := failure(err)
		g.logger.Warn("gcs archive failed", "file", f.Name, "kind", res.ErrorKind, "error", err)
		return res
	}

	g.logger.Info("archived to gcs", "bucket", g.bucket, "object", key, "tier", tier)
	return Result{
		Success: true,
		ID:      key,
		Link:    fmt.Sprintf("https://storage.cloud.google.com/%s/%s", g.bucket, key),
	}
}
