package blobcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/tripkeeper/internal/filex"
)

const tmpPrefix = ".tmp-"

// FSProvider keeps each cache in its own directory under Root.
type FSProvider struct {
	Root string
}

func (p FSProvider) Open(_ context.Context, name string) (Cache, error) {
	return NewFSCache(filepath.Join(p.Root, name), name)
}

// FSCache stores blobs as files below a directory. Writes go through a
// temporary file and a rename so readers never see partial content.
type FSCache struct {
	dir  string
	name string
}

var _ Cache = (*FSCache)(nil)

// NewFSCache creates dir if needed.
func NewFSCache(dir, name string) (*FSCache, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &FSCache{dir: abs, name: name}, nil
}

func (c *FSCache) Name() string { return c.name }

func (c *FSCache) path(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	p := filepath.FromSlash(key)
	if !filepath.IsLocal(p) || strings.HasPrefix(filepath.Base(p), tmpPrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(c.dir, p), nil
}

func (c *FSCache) Get(_ context.Context, key string) ([]byte, error) {
	p, err := c.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", c.name, key, err)
	}
	return data, nil
}

func (c *FSCache) Put(_ context.Context, key string, data []byte) error {
	p, err := c.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s/%s: %w", c.name, key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s/%s: %w", c.name, key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("rename %s/%s: %w", c.name, key, err)
	}
	return nil
}

func (c *FSCache) Has(_ context.Context, key string) (bool, error) {
	p, err := c.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (c *FSCache) Delete(_ context.Context, key string) error {
	p, err := c.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s/%s: %w", c.name, key, err)
	}
	return nil
}

func (c *FSCache) List(_ context.Context) ([]Entry, error) {
	var out []Entry
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(c.dir, path)
		if err != nil {
			return err
		}
		out = append(out, Entry{Key: filepath.ToSlash(rel), Size: info.Size(), StoredAt: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.name, err)
	}
	return out, nil
}

func (c *FSCache) Size(ctx context.Context) (int64, error) {
	return filex.DirSize(c.dir)
}

func (c *FSCache) Clear(_ context.Context) error {
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("clear %s: %w", c.name, err)
	}
	if err := os.MkdirAll(c.dir, 0o770); err != nil {
		return fmt.Errorf("recreate %s: %w", c.name, err)
	}
	return nil
}

func (c *FSCache) URL(key string) string {
	return "file://" + filepath.ToSlash(filepath.Join(c.dir, filepath.FromSlash(key)))
}
