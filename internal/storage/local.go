package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend writes objects into a directory served under publicPrefix.
type LocalBackend struct {
	dir          string
	publicPrefix string
}

// NewLocalBackend creates dir if needed.
func NewLocalBackend(dir, publicPrefix string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalBackend{dir: dir, publicPrefix: "/" + strings.Trim(publicPrefix, "/")}, nil
}

// Dir returns the directory served as static files.
func (b *LocalBackend) Dir() string {
	return b.dir
}

func (b *LocalBackend) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	if key != filepath.Base(key) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	if err := os.WriteFile(filepath.Join(b.dir, key), data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return b.publicPrefix + "/" + key, nil
}
