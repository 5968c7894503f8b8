// Package upload hosts message attachments and avatars. Every failure is
// reported as an apperr UploadFailed error.
package upload

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"cchat/internal/apperr"

	"github.com/dustin/go-humanize"
)

// DefaultMaxSize is used when no limit is configured.
const DefaultMaxSize = "10MB"

// ErrDisabled is returned when no attachment store is configured.
var ErrDisabled = apperr.Upload(errors.New("uploads are not configured"))

// Uploader stores a local file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// ParseMaxSize parses a human size such as "10MB". An empty string means
// DefaultMaxSize.
func ParseMaxSize(raw string) (int64, error) {
	if raw == "" {
		raw = DefaultMaxSize
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("parse upload size %q: %w", raw, err)
	}
	return int64(n), nil
}

// openChecked opens path and enforces maxSize (0 disables the check).
func openChecked(path string, maxSize int64) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, apperr.Upload(fmt.Errorf("open attachment: %w", err))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, apperr.Upload(fmt.Errorf("stat attachment: %w", err))
	}
	if maxSize > 0 && info.Size() > maxSize {
		f.Close()
		return nil, 0, apperr.Upload(fmt.Errorf("attachment is %s, limit is %s",
			humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(maxSize))))
	}
	return f, info.Size(), nil
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Func adapts a function to Uploader.
type Func func(ctx context.Context, path string) (string, error)

func (f Func) Upload(ctx context.Context, path string) (string, error) { return f(ctx, path) }
