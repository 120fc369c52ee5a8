// Package archive copies uploaded sources to cloud storage for the team.
package archive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"google.golang.org/api/googleapi"

	"github.com/ashureev/schema-quest/internal/domain"
)

// ErrorKind classifies a failed upload.
type ErrorKind string

const (
	// KindAuth means the credential cannot write. Retrying will not help;
	// the user has to upload the file by hand.
	KindAuth       ErrorKind = "AUTH"
	KindNetwork    ErrorKind = "NETWORK"
	KindPermission ErrorKind = "PERMISSION"
	KindUnknown    ErrorKind = "UNKNOWN"
)

// File is the payload to archive.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Result is the outcome of one upload.
type Result struct {
	Success   bool      `json:"success"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	ID        string    `json:"id,omitempty"`
	Link      string    `json:"link,omitempty"`
}

// Archiver uploads a source file tagged with the tier it was harvested in.
type Archiver interface {
	Archive(ctx context.Context, f File, tier domain.Tier) Result
}

const origin = "Data Sources"

func description(tier domain.Tier) string {
	return fmt.Sprintf("Schema Quest ingredient - %s Layer Harvest", tier)
}

func appProperties(tier domain.Tier) map[string]string {
	return map[string]string{
		"layer":  string(tier),
		"origin": origin,
	}
}

// Classify maps an upload error to an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusUnauthorized:
			return KindAuth
		case http.StatusForbidden:
			return KindPermission
		default:
			return KindUnknown
		}
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return KindNetwork
	}
	return KindUnknown
}

func failure(err error) Result {
	kind := Classify(err)
	msg := err.Error()
	if kind == KindAuth {
		msg = "Archive uploads need an OAuth2 identity; the configured API key is read-only. Please upload the file manually."
	}
	return Result{ErrorKind: kind, Message: msg}
}
