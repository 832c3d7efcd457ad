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

// Blobs stores image files under relative keys such as "261/0-fachada.jpg".
type Blobs interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// Path is the location consumers resolve the key to.
	Path(key string) string
}

// FSBlobs keeps files on the local disk under Root.
type FSBlobs struct {
	Root string
}

func NewFSBlobs(root string) (*FSBlobs, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	return &FSBlobs{Root: root}, nil
}

func (b *FSBlobs) Path(key string) string {
	return filepath.Join(b.Root, filepath.FromSlash(key))
}

func (b *FSBlobs) resolve(key string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean("/" + key))
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return b.Path(strings.TrimPrefix(clean, "/")), nil
}

// Put writes through a temp file so readers never see a partial image.
func (b *FSBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	path, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (b *FSBlobs) Exists(_ context.Context, key string) (bool, error) {
	path, err := b.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (b *FSBlobs) Delete(_ context.Context, key string) error {
	path, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
