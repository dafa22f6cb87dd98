package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LocalStorage implements ObjectStorage on the local filesystem.
type LocalStorage struct {
	basePath string
	mu       sync.RWMutex
}

// NewLocalStorage creates a local storage rooted at basePath.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		return nil, fmt.Errorf("storage: local backend needs a base path")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Backend implements ObjectStorage.
func (l *LocalStorage) Backend() string { return "local" }

// Put writes the object through a temp file and rename so readers never see
// a partial snapshot.
func (l *LocalStorage) Put(ctx context.Context, objectPath string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest, err := l.fullPath(objectPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return nil
}

// Get implements ObjectStorage.
func (l *LocalStorage) Get(ctx context.Context, objectPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := l.fullPath(objectPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	body, err := os.ReadFile(src)
	if os.IsNotExist(err) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return body, nil
}

// Delete implements ObjectStorage.
func (l *LocalStorage) Delete(ctx context.Context, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := l.fullPath(objectPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return nil
}

// Exists implements ObjectStorage.
func (l *LocalStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path, err := l.fullPath(objectPath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListObjects implements ObjectStorage. Paths use forward slashes.
func (l *LocalStorage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	objects := []string{}
	err := filepath.Walk(l.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			objects = append(objects, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(objects)
	return objects, nil
}

// fullPath maps an object path under the base directory and refuses paths
// that would escape it.
func (l *LocalStorage) fullPath(objectPath string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(objectPath))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("empty object path")
	}
	return filepath.Join(l.basePath, clean), nil
}
