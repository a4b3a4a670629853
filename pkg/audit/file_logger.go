package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileLogger appends audit events to an NDJSON file, one event per
// line. Rotation happens when the file exceeds MaxSize.
type FileLogger struct {
	path    string
	maxSize int64
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	Path    string // Audit log file path
	MaxSize int64  // Max file size in bytes before rotation (default: 100MB)
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("audit log path is required")
	}
	if config.MaxSize == 0 {
		config.MaxSize = 100 * 1024 * 1024
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{path: config.Path, maxSize: config.MaxSize}
	if err := logger.open(); err != nil {
		return nil, err
	}
	return logger, nil
}

func (l *FileLogger) open() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

// Log writes one event as a JSON line.
func (l *FileLogger) Log(_ context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// rotate renames the current file with a .1 suffix and reopens. A
// previous .1 file is overwritten.
func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log: %w", err)
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}
	return l.open()
}

// Close flushes and closes the underlying file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
