// Package filestore is the local-directory objstore backend. Keys map to
// paths below a root directory.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/objstore"
)

func init() {
	objstore.Register("file", func(_ context.Context, cfg objstore.Config) (objstore.Store, error) {
		return New(cfg.Root)
	})
}

// Store reads and writes files below Root.
type Store struct {
	root string
}

// New returns a Store rooted at root ("." when empty).
func New(root string) (*Store, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("filestore: resolve root %q: %w", root, err)
	}
	return &Store{root: abs}, nil
}

// path maps key to a file path and rejects keys escaping the root.
func (s *Store) path(key string) (string, error) {
	k := strings.TrimPrefix(filepath.ToSlash(key), "/")
	if k == "" {
		return "", errors.New("filestore: empty key")
	}
	p := filepath.Join(s.root, filepath.FromSlash(k))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("filestore: key %q escapes root", key)
	}
	return p, nil
}

// Get reads the object at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", objstore.ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read %s: %w", p, err)
	}
	return b, nil
}

// Put writes data to key, creating parent directories. The write goes to a
// temporary file first so readers never see a partial object.
func (s *Store) Put(_ context.Context, key string, data []byte, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("filestore: mkdir for %s: %w", p, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-"+filepath.Base(p)+"-*")
	if err != nil {
		return fmt.Errorf("filestore: create temp for %s: %w", p, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("filestore: write %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("filestore: close %s: %w", p, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("filestore: rename to %s: %w", p, err)
	}
	return nil
}

// Location returns a file:// URI for key.
func (s *Store) Location(key string) string {
	p, err := s.path(key)
	if err != nil {
		return key
	}
	return "file://" + filepath.ToSlash(p)
}
