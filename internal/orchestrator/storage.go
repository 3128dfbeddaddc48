package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStorage is a filesystem-backed Storage implementation rooted at a
// single directory. A production deployment supplies its own Storage
// (S3, GCS, Supabase Storage); this type exists to make the Orchestrator
// runnable standalone.
type LocalStorage struct {
	Root string
}

// NewLocalStorage constructs a LocalStorage rooted at root.
func NewLocalStorage(root string) *LocalStorage {
	return &LocalStorage{Root: root}
}

// Download implements Storage by reading bucket/path relative to Root.
func (l *LocalStorage) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	full := filepath.Join(l.Root, bucket, path)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", full, err)
	}
	return data, nil
}
