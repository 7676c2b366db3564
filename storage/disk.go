// Package storage provides the local-disk attachment store. It satisfies
// the pipeline's BlobStore contract; the core only ever sees the returned
// locator.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type DiskBlobStore struct {
	dir string
	log *slog.Logger
}

func NewDiskBlobStore(dir string, log *slog.Logger) (*DiskBlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &DiskBlobStore{dir: dir, log: log}, nil
}

// Put writes the content under a random file name and returns the locator.
// The original name only survives in the attachment metadata row, so hostile
// names never touch the filesystem.
func (s *DiskBlobStore) Put(name string, content []byte) (string, error) {
	locator := uuid.New().String()
	path := filepath.Join(s.dir, locator)
	if err := os.WriteFile(path, content, 0o640); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	s.log.Debug("blob stored", "locator", locator, "name", name, "size", len(content))
	return locator, nil
}

func (s *DiskBlobStore) Delete(locator string) error {
	// The locator is always one of our generated UUIDs; Base guards against
	// a corrupted record escaping the blob directory.
	path := filepath.Join(s.dir, filepath.Base(locator))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
