// Package export serializes the final package for download.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/schema-quest/internal/domain"
)

// Format is a download encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml, case-insensitively. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// Filename is the download name for a session's package.
func (f Format) Filename(sessionID string) string {
	return fmt.Sprintf("schema-quest-%s.%s", sessionID, f)
}

// Marshal encodes pkg in format f.
func Marshal(pkg *domain.FinalPackage, f Format) ([]byte, error) {
	if pkg == nil {
		return nil, fmt.Errorf("no package to export")
	}
	switch f {
	case FormatJSON:
		return json.MarshalIndent(pkg, "", "  ")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(pkg); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", f)
	}
}

// Unmarshal decodes data written by Marshal.
func Unmarshal(data []byte, f Format) (*domain.FinalPackage, error) {
	var pkg domain.FinalPackage
	switch f {
	case FormatJSON:
		if err := json.Unmarshal(data, &pkg); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &pkg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported export format %q", f)
	}
	return &pkg, nil
}
