// Package ingest turns uploaded files and remote links into text the
// content service can analyse.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultReadLimit is how many bytes of a source are kept for analysis.
const DefaultReadLimit = 10000

var (
	// ErrInputQuality marks content that is empty, binary or unparseable.
	ErrInputQuality = errors.New("unusable input")
	// ErrTimeout marks a link fetch that ran past its deadline.
	ErrTimeout = errors.New("link fetch timed out")
	// ErrUnreachable marks a link that could not be fetched for any other reason.
	ErrUnreachable = errors.New("link unreachable")
)

// Document is a normalized source ready for field extraction.
type Document struct {
	Name      string `json:"name"`
	Content   string `json:"-"`
	MimeType  string `json:"mime_type"`
	Truncated bool   `json:"truncated"`
}

var extensionTypes = map[string]string{
	".csv":  "text/csv",
	".json": "application/json",
	".md":   "text/markdown",
	".txt":  "text/plain",
}

// Normalize reads at most limit bytes of r and validates them as text.
// CSV and JSON sources must parse; a truncated tail is tolerated.
func Normalize(name string, r io.Reader, limit int) (Document, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	raw, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", name, err)
	}
	truncated := len(raw) > limit
	if truncated {
		raw = trimPartialRune(raw[:limit])
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Document{}, fmt.Errorf("%w: %s is empty", ErrInputQuality, name)
	}

	detected := mimetype.Detect(raw)
	if !isText(detected) {
		return Document{}, fmt.Errorf("%w: %s looks like %s", ErrInputQuality, name, detected.String())
	}
	if !utf8.Valid(raw) {
		return Document{}, fmt.Errorf("%w: %s is not UTF-8 text", ErrInputQuality, name)
	}

	mimeType := baseType(detected.String())
	if t, ok := extensionTypes[strings.ToLower(path.Ext(name))]; ok {
		mimeType = t
	}

	switch mimeType {
	case "application/json":
		if !truncated && !json.Valid(raw) {
			return Document{}, fmt.Errorf("%w: %s is not valid JSON", ErrInputQuality, name)
		}
	case "text/csv":
		if err := checkCSV(raw, truncated); err != nil {
			return Document{}, fmt.Errorf("%w: %s: %v", ErrInputQuality, name, err)
		}
	}

	return Document{
		Name:      name,
		Content:   string(raw),
		MimeType:  mimeType,
		Truncated: truncated,
	}, nil
}

func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func baseType(s string) string {
	t, _, _ := strings.Cut(s, ";")
	return strings.TrimSpace(t)
}

// trimPartialRune drops an incomplete UTF-8 sequence left by truncation.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size > 1 {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

func checkCSV(raw []byte, truncated bool) error {
	if truncated {
		if i := bytes.LastIndexByte(raw, '\n'); i >= 0 {
			raw = raw[:i+1]
		}
	}
	rd := csv.NewReader(bytes.NewReader(raw))
	rd.ReuseRecord = true
	rows := 0
	for {
		_, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		rows++
	}
	if rows == 0 {
		return errors.New("no rows")
	}
	return nil
}
