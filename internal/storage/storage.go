// Package storage writes uploaded attachment binaries and returns the
// reference tuple stored on tickets.
package storage

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/uni-helpdesk/internal/config"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

// Backend persists an object under key and returns its public URL.
type Backend interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Upload is one received file.
type Upload struct {
	Name string
	Data []byte
}

// Stored describes a saved file in the shape tickets reference it.
type Stored struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
	FileMime string `json:"fileMime"`
	FileSize int64  `json:"fileSize"`
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SafeName replaces every character outside [a-zA-Z0-9._-] with '_'.
func SafeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// Uploader validates uploads and writes them to a Backend.
type Uploader struct {
	backend  Backend
	maxBytes int64
	allowed  map[string]struct{}
	now      func() time.Time
}

// NewUploader builds an uploader enforcing the configured size and type limits.
func NewUploader(backend Backend, cfg config.UploadConfig) *Uploader {
	allowed := make(map[string]struct{}, len(cfg.AllowedMimes))
	for _, mime := range cfg.AllowedMimes {
		allowed[strings.ToLower(strings.TrimSpace(mime))] = struct{}{}
	}
	return &Uploader{backend: backend, maxBytes: cfg.MaxBytes, allowed: allowed, now: time.Now}
}

// Validate applies the size and type limits to one file and returns its
// sniffed content type. The client's declared type is not trusted.
func (u *Uploader) Validate(upload Upload) (string, error) {
	size := int64(len(upload.Data))
	if size > u.maxBytes {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("File too large (max %dMB)", u.maxBytes/(1024*1024)),
			map[string]any{"file": upload.Name})
	}
	if size == 0 {
		return "", apperrors.NewValidationError("Empty file", map[string]any{"file": upload.Name})
	}

	mime := sniff(upload.Data)
	if _, ok := u.allowed[mime]; !ok {
		return "", apperrors.NewValidationError("Unsupported file type", map[string]any{"file": upload.Name})
	}
	return mime, nil
}

// Save validates and stores one file.
func (u *Uploader) Save(ctx context.Context, upload Upload) (Stored, error) {
	mime, err := u.Validate(upload)
	if err != nil {
		return Stored{}, err
	}

	key := fmt.Sprintf("%d-%s-%s", u.now().UnixMilli(), uuid.NewString(), SafeName(upload.Name))
	url, err := u.backend.Put(ctx, key, mime, upload.Data)
	if err != nil {
		return Stored{}, apperrors.NewInternalError(err)
	}
	return Stored{FileName: upload.Name, FileURL: url, FileMime: mime, FileSize: int64(len(upload.Data))}, nil
}

func sniff(data []byte) string {
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.TrimSpace(mime)
}

// NewBackend selects the backend named by cfg.Provider.
func NewBackend(cfg config.UploadConfig) (Backend, error) {
	switch cfg.Provider {
	case "", "local":
		return NewLocalBackend(cfg.LocalDir, cfg.PublicPrefix)
	case "s3":
		return NewS3Backend(cfg)
	default:
		return nil, fmt.Errorf("invalid upload provider %q", cfg.Provider)
	}
}
