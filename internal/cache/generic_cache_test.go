package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenericDiskSetAndGet(t *testing.T) {
	tempDir := t.TempDir()
	cache := NewGenericDisk(tempDir)

	// Test data
	cachePath := filepath.Join("test", "cache.bin")
	testData := []byte("test response data")

	// Test Set
	err := cache.Set(cachePath, testData)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Verify file exists at the correct location
	expectedPath := filepath.Join(tempDir, cachePath)
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Cache file was not created at %s", expectedPath)
	}

	// Test Get
	data, err := cache.Get(cachePath)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if data == nil {
		t.Fatalf("Get() returned nil data, want cached data")
	}

	if string(data) != string(testData) {
		t.Errorf("Get() data = %s, want %s", string(data), string(testData))
	}
}

func TestGenericDiskGetMissing(t *testing.T) {
	cache := NewGenericDisk(t.TempDir())

	data, err := cache.Get("nothing/here.bin")
	if err != nil {
		t.Errorf("Get() error = %v", err)
	}
	if data != nil {
		t.Errorf("Get() returned data for missing key, want nil")
	}
}

func TestGenericDiskInit(t *testing.T) {
	tempDir := t.TempDir()
	cacheDir := filepath.Join(tempDir, "new", "cache", "dir")

	cache := NewGenericDisk(cacheDir)

	err := cache.Init()
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	// Verify directory was created
	if _, err := os.Stat(cacheDir); os.IsNotExist(err) {
		t.Fatalf("Cache directory was not created")
	}
}

func TestGenericDiskRejectsEscapingKeys(t *testing.T) {
	cache := NewGenericDisk(t.TempDir())

	for _, key := range []string{"", "/", ".."} {
		err := cache.Set(key, []byte("x"))
		assert.Error(t, err, "key %q", key)
	}

	// parent references are cleaned into the cache directory
	require.NoError(t, cache.Set("../inside.bin", []byte("x")))
	data, err := cache.Get("inside.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestGenericDiskSetAfterRemoval(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "store")
	cache := NewGenericDisk(cacheDir)
	require.NoError(t, cache.Init())
	require.NoError(t, os.RemoveAll(cacheDir))

	err := cache.Set("a/GET.bin", []byte("x"))
	assert.ErrorIs(t, err, ErrStoreNotFound)

	_, statErr := os.Stat(cacheDir)
	assert.True(t, os.IsNotExist(statErr), "removed store must not be recreated by Set")
}

func TestGenericDiskKeys(t *testing.T) {
	cache := NewGenericDisk(t.TempDir())
	require.NoError(t, cache.Init())
	require.NoError(t, cache.Set("b/GET.bin", []byte("1")))
	require.NoError(t, cache.Set("a/c/GET.bin", []byte("2")))

	keys, err := cache.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a/c/GET.bin", "b/GET.bin"}, keys)
}
