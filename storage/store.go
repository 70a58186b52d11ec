// Package storage publishes exported models to a directory or an object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ldsec/trendCNN/config"
	"go.dedis.ch/onet/v3/log"
)

// ErrNotFound is returned by Get for a missing key
var ErrNotFound = errors.New("object not found")

// Store is a flat key/value object store, keys use "/" as separator
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// New returns the store selected by cfg.Backend, nil for "none"
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "local":
		s, err := NewLocalStore(cfg.Root)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "minio":
		s, err := NewMinioStore(ctx, MinioOptions{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// PublishDir uploads every regular file of dir under prefix/<relative path>
// and returns the uploaded keys in order
func PublishDir(ctx context.Context, store Store, prefix, dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	keys := make([]string, 0, len(files))
	for _, p := range files {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return keys, err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		if err := putFile(ctx, store, key, p); err != nil {
			return keys, fmt.Errorf("publishing %s: %w", p, err)
		}
		log.Lvl2("published", key)
		keys = append(keys, key)
	}
	return keys, nil
}

func putFile(ctx context.Context, store Store, key, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return store.Put(ctx, key, f, info.Size())
}

func cleanKey(key string) (string, error) {
	k := path.Clean("/" + key)[1:]
	if k == "" || strings.HasPrefix(key, "../") || strings.Contains(key, "/../") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return k, nil
}
