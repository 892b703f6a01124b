package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/stockroomhq/stockroom-backend/pkg/config"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

// Store writes uploaded assets (product photos, QR labels) to local disk
// and maps them to public URLs served by the API.
type Store struct {
	baseDir   string
	publicURL string
}

func NewStore(ctx context.Context, cfg config.StorageConfig, logg *logger.Logger) (*Store, error) {
	if cfg.UploadDir == "" {
		return nil, errors.New("storage upload dir is required")
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "local storage initialized")
	}

	return &Store{
		baseDir:   cfg.UploadDir,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// Save writes data under the relative key and returns its public URL.
// Keys may contain subdirectories ("qr/ABC123.png").
func (s *Store) Save(ctx context.Context, key string, data []byte) (string, error) {
	clean, err := s.cleanKey(key)
	if err != nil {
		return "", err
	}

	full := filepath.Join(s.baseDir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating asset dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("writing asset %q: %w", clean, err)
	}

	return s.URLFor(clean), nil
}

// Remove deletes the asset stored at key; missing files are not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	clean, err := s.cleanKey(key)
	if err != nil {
		return err
	}
	full := filepath.Join(s.baseDir, filepath.FromSlash(clean))
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing asset %q: %w", clean, err)
	}
	return nil
}

// URLFor maps a storage key to its public URL.
func (s *Store) URLFor(key string) string {
	return s.publicURL + "/" + strings.TrimLeft(key, "/")
}

// Dir exposes the root directory for static file serving.
func (s *Store) Dir() string {
	return s.baseDir
}

func (s *Store) cleanKey(key string) (string, error) {
	clean := path.Clean(strings.TrimLeft(key, "/"))
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return clean, nil
}
