package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ashureev/schema-quest/internal/domain"
)

// Drive uploads into one shared Drive folder.
type Drive struct {
	svc      *drive.Service
	folderID string
	logger   *slog.Logger
}

// NewDrive creates a Drive archiver for folderID.
func NewDrive(ctx context.Context, folderID string, logger *slog.Logger, opts ...option.ClientOption) (*Drive, error) {
	if folderID == "" {
		return nil, errors.New("drive folder id is required")
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Drive{svc: svc, folderID: folderID, logger: logger}, nil
}

func (d *Drive) Archive(ctx context.Context, f File, tier domain.Tier) Result {
	meta := &drive.File{
		Name:          f.Name,
		Parents:       []string{d.folderID},
		Description:   description(tier),
		AppProperties: appProperties(tier),
	}
	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	created, err := d.svc.Files.Create(meta).
		Media(bytes.NewReader(f.Data), googleapi.ContentType(mimeType)).
		Fields("id", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		res := failure(err)
		d.logger.Warn("drive archive failed", "file", f.Name, "kind", res.ErrorKind, "error", err)
		return res
	}

	link := created.WebViewLink
	if link == "" {
		link = "https://drive.google.com/file/d/" + created.Id + "/view"
	}
	d.logger.Info("archived to drive", "file", f.Name, "id", created.Id, "tier", tier)
	return Result{Success: true, ID: created.Id, Link: link}
}
