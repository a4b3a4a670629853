package uploads

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
)

// FilesystemStorage stores uploads under a local root directory. Useful
// for development and single-node deployments.
type FilesystemStorage struct {
	rootDir string
}

// NewFilesystemStorage creates a filesystem-backed storage rooted at rootDir.
func NewFilesystemStorage(rootDir string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads root: %w", err)
	}
	return &FilesystemStorage{rootDir: rootDir}, nil
}

// Put writes content under key, creating parent directories as needed.
func (s *FilesystemStorage) Put(ctx context.Context, key string, content io.Reader, contentType string) error {
	if err := validKey(key); err != nil {
		return err
	}

	target := filepath.Join(s.rootDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	// Write to a temp file first so readers never observe partial content.
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to finalize upload: %w", err)
	}
	return nil
}

// Get opens the object under key. The content type is inferred from the
// key's extension.
func (s *FilesystemStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := validKey(key); err != nil {
		return nil, "", err
	}

	target := filepath.Join(s.rootDir, filepath.FromSlash(key))
	f, err := os.Open(target)
	if os.IsNotExist(err) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open upload: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(target))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return f, contentType, nil
}

// Delete removes the object under key. Deleting a missing key is not an
// error.
func (s *FilesystemStorage) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}

	target := filepath.Join(s.rootDir, filepath.FromSlash(key))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return nil
}
