package media

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
)

// BlobLoader fetches the bytes of a stored media file.
type BlobLoader func(ctx context.Context, fileID string) ([]byte, error)

// BlobCache materialises stored blobs as files so ffmpeg can open and seek
// them. Blobs are immutable, so a file written once stays valid.
type BlobCache struct {
	dir  string
	load BlobLoader

	mu    sync.Mutex
	paths map[string]string
}

func NewBlobCache(dir string, load BlobLoader) (*BlobCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create media cache dir: %w", err)
	}
	return &BlobCache{dir: dir, load: load, paths: make(map[string]string)}, nil
}

// Path returns a local file holding fileID's bytes.
func (c *BlobCache) Path(ctx context.Context, fileID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.paths[fileID]; ok {
		return p, nil
	}

	p := filepath.Join(c.dir, filepath.Base(fileID))
	if _, err := os.Stat(p); err == nil {
		c.paths[fileID] = p
		return p, nil
	}

	data, err := c.load(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("load blob %s: %w", fileID, err)
	}
	tmp, err := os.CreateTemp(c.dir, ".blob-*")
	if err != nil {
		return "", fmt.Errorf("cannot create cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("cannot write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("cannot write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("cannot finalise cache file: %w", err)
	}

	c.paths[fileID] = p
	return p, nil
}

// WriteTemp stores data under a fresh name in the cache dir, for inputs that
// are not yet blobs. The caller removes the file.
func (c *BlobCache) WriteTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(c.dir, pattern)
	if err != nil {
		return "", fmt.Errorf("cannot create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("cannot write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (c *BlobCache) Dir() string {
	return c.dir
}

// DecodeImageFile decodes the still stored at path.
func DecodeImageFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return DecodeImage(data)
}
