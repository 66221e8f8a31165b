package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/garyjia/dispatch-register/internal/application/port"
	"go.uber.org/zap"
)

// ErrOutsideCache is returned for a path that does not lie inside the cache directory
var ErrOutsideCache = errors.New("path escapes cache directory")

// LocalFileStorage implements port.FileStorage over the private download
// cache directory. Paths may be relative to the cache or absolute; either
// way they must resolve inside it.
type LocalFileStorage struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalFileStorage creates a new LocalFileStorage
func NewLocalFileStorage(baseDir string, logger *zap.Logger) *LocalFileStorage {
	return &LocalFileStorage{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Save writes content to the given path
func (s *LocalFileStorage) Save(ctx context.Context, path string, content []byte) error {
	fullPath := s.GetFullPath(path)
	if err := s.validatePath(fullPath); err != nil {
		return err
	}

	parentDir := filepath.Dir(fullPath)
	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		s.logger.Error("Failed to create parent directories",
			zap.String("path", parentDir),
			zap.Error(err))
		return fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("File saved",
		zap.String("path", fullPath),
		zap.Int("size", len(content)))
	return nil
}

// Exists checks if a file exists at the given path
func (s *LocalFileStorage) Exists(ctx context.Context, path string) bool {
	_, err := os.Stat(s.GetFullPath(path))
	return err == nil
}

// Delete removes a cached file. A missing file is not an error.
func (s *LocalFileStorage) Delete(ctx context.Context, path string) error {
	fullPath := s.GetFullPath(path)
	if err := s.validatePath(fullPath); err != nil {
		s.logger.Warn("Refusing to delete file outside the cache", zap.String("path", fullPath))
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		s.logger.Error("Failed to delete file",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}

	s.removeEmptyParent(fullPath)
	s.logger.Debug("File deleted", zap.String("path", fullPath))
	return nil
}

// GetFullPath resolves path against the cache directory. Absolute paths are
// returned cleaned and unchanged otherwise.
func (s *LocalFileStorage) GetFullPath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.baseDir, path)
}

// removeEmptyParent drops the per-group directory once its last file is gone
func (s *LocalFileStorage) removeEmptyParent(fullPath string) {
	dir := filepath.Dir(fullPath)
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return
	}
	if absDir, err := filepath.Abs(dir); err != nil || absDir == absBase {
		return
	}
	// os.Remove fails on a non-empty directory, which is what we want
	_ = os.Remove(dir)
}

func (s *LocalFileStorage) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrOutsideCache, fullPath)
	}
	return nil
}

var _ port.FileStorage = (*LocalFileStorage)(nil)
