package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FSStore stores blobs as files under a root directory. O_EXCL on create
// gives the atomic refuse-overwrite guarantee.
type FSStore struct {
	root string
}

// NewFSStore returns a filesystem store rooted at dir, creating it if
// needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fs store: %w", err)
	}
	return &FSStore{root: dir}, nil
}

func (s *FSStore) fullPath(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Put implements Store.
func (s *FSStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.fullPath(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("fs store put %s: %w", name, err)
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("fs store put %s: %w", name, ErrExists)
		}
		return fmt.Errorf("fs store put %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("fs store put %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("fs store put %s: %w", name, err)
	}
	return nil
}

// List implements Store. A prefix whose directory does not exist yet lists
// as empty, not as an error.
func (s *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Walk from the deepest directory the prefix fully names.
	walkDir := s.root
	if dir := prefix[:strings.LastIndexByte(prefix, '/')+1]; dir != "" {
		walkDir = filepath.Join(s.root, filepath.FromSlash(dir))
	}

	var names []string
	err := filepath.WalkDir(walkDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fs store list %s: %w", prefix, err)
	}
	slices.Sort(names)
	return names, nil
}

// Get implements Store.
func (s *FSStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.fullPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("fs store get %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("fs store get %s: %w", name, err)
	}
	return data, nil
}

// Close implements Store. The filesystem holds no open resources.
func (s *FSStore) Close() error { return nil }
