package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const tempPrefix = ".cache-"

// DiskCache implements GenericCache on top of a directory
type DiskCache struct {
	cacheDir string
}

// NewGenericDisk creates a new disk cache rooted at cacheDir
func NewGenericDisk(cacheDir string) *DiskCache {
	return &DiskCache{
		cacheDir: cacheDir,
	}
}

// path maps a slash-separated key to a file below cacheDir
func (d *DiskCache) path(key string) (string, error) {
	rel := strings.TrimPrefix(path.Clean("/"+key), "/")
	if rel == "" {
		return "", fmt.Errorf("invalid cache key: %q", key)
	}

	filePath := filepath.Join(d.cacheDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, filepath.Clean(d.cacheDir)+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid cache key: %q", key)
	}
	return filePath, nil
}

// Get retrieves cached data if it exists
func (d *DiskCache) Get(key string) ([]byte, error) {
	filePath, err := d.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	return data, nil
}

// Set stores data in the cache. The file is written to a temporary name and
// renamed into place so readers never observe a partial entry. Writing to a
// cache whose directory was removed fails with ErrStoreNotFound.
func (d *DiskCache) Set(key string, data []byte) error {
	filePath, err := d.path(key)
	if err != nil {
		return err
	}

	if _, err := os.Stat(d.cacheDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrStoreNotFound
		}
		return err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	if closeErr := tempFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		_ = os.Remove(tempName)
		return err
	}

	logrus.Debugf("Cached entry: %s", filePath)
	return nil
}

// Keys walks the cache directory and returns every stored key
func (d *DiskCache) Keys() ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.cacheDir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(d.cacheDir, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Init ensures the cache directory exists
func (d *DiskCache) Init() error {
	return os.MkdirAll(d.cacheDir, 0755)
}

// DiskStorage keeps one DiskCache directory per named store
type DiskStorage struct {
	root string
}

// NewDiskStorage creates the storage root if needed
func NewDiskStorage(root string) (*DiskStorage, error) {
	if root == "" {
		return nil, errors.New("storage path required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}
	return &DiskStorage{root: abs}, nil
}

func (s *DiskStorage) Open(name string) (GenericCache, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	store := NewGenericDisk(filepath.Join(s.root, name))
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("failed to create store %s: %w", name, err)
	}
	return store, nil
}

func (s *DiskStorage) Lookup(name string) (GenericCache, error) {
	found, err := s.Has(name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrStoreNotFound
	}
	return NewGenericDisk(filepath.Join(s.root, name)), nil
}

func (s *DiskStorage) Has(name string) (bool, error) {
	if err := validateStoreName(name); err != nil {
		return false, err
	}
	info, err := os.Stat(filepath.Join(s.root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (s *DiskStorage) Names() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func (s *DiskStorage) Delete(name string) (bool, error) {
	found, err := s.Has(name)
	if err != nil || !found {
		return false, err
	}
	if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
		return false, fmt.Errorf("failed to delete store %s: %w", name, err)
	}
	return true, nil
}

func (s *DiskStorage) Close() error {
	return nil
}
