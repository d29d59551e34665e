package upload

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const fallbackName = "upload"

// Store places uploaded images in a working directory for the duration of a request.
type Store struct {
	dir    string
	keep   bool
	logger *zap.Logger
}

// NewStore creates dir if needed. When keep is set, Release leaves files on disk.
func NewStore(dir string, keep bool, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, keep: keep, logger: logger.Named("upload_store")}, nil
}

// Dir returns the working directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns where the upload for requestID should be written. Only the
// base of the client filename is used.
func (s *Store) Path(requestID, filename string) string {
	return filepath.Join(s.dir, requestID+"_"+SanitizeFilename(filename))
}

// Release deletes the stored upload unless the store keeps files.
func (s *Store) Release(path string) {
	if s.keep {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove upload", zap.String("path", path), zap.Error(err))
	}
}

// SanitizeFilename strips directory components from a client supplied name.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." || strings.TrimSpace(base) == "" {
		return fallbackName
	}
	return base
}
