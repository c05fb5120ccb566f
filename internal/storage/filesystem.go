package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSystem stores each key as one file below a base directory. Writes go to
// a temporary sibling and are renamed into place, so readers never observe a
// partially written document.
type FileSystem struct {
	baseDir string
}

func NewFileSystem(baseDir string) *FileSystem {
	return &FileSystem{baseDir: filepath.Clean(baseDir)}
}

// resolve maps a key to a path inside baseDir, rejecting anything that escapes it.
func (f *FileSystem) resolve(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid key %q: parent directory reference", key)
	}
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid key %q: absolute path", key)
	}
	full := filepath.Join(f.baseDir, cleaned)
	if full != f.baseDir && !strings.HasPrefix(full, f.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q: outside base directory", key)
	}
	return full, nil
}

func (f *FileSystem) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("setting mode on %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}

func (f *FileSystem) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := f.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// List returns the keys matching a glob pattern, relative to the base directory.
func (f *FileSystem) List(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := f.resolve(pattern)
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(full)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", pattern, err)
	}

	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.HasPrefix(filepath.Base(m), ".tmp-") {
			continue
		}
		rel, err := filepath.Rel(f.baseDir, m)
		if err != nil {
			continue
		}
		keys = append(keys, filepath.ToSlash(rel))
	}
	return keys, nil
}
