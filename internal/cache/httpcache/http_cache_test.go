package httpcache

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iTrooz/offline-cache-proxy/internal/cache"
)

func TestGenerateKey(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		want   string
	}{
		{
			name:   "root document",
			method: "GET",
			url:    "http://localhost:3000/",
			want:   "http/localhost:3000/GET.bin",
		},
		{
			name:   "asset",
			method: "GET",
			url:    "https://example.com/icon-192.png",
			want:   "https/example.com/icon-192.png/GET.bin",
		},
		{
			name:   "default port stripped",
			method: "GET",
			url:    "https://example.com:443/index.html",
			want:   "https/example.com/index.html/GET.bin",
		},
		{
			name:   "query hashed",
			method: "GET",
			url:    "https://api.github.com/users?page=1",
			want:   "https/api.github.com/users/GET_qc5c34f0fdf091a49d75cc51b4f64ab34cbae49cf4914bb0a0a1c0c599b7a4373.bin",
		},
		{
			name:   "fragment ignored",
			method: "GET",
			url:    "http://example.com/index.html#top",
			want:   "http/example.com/index.html/GET.bin",
		},
		{
			name:   "trailing slash kept distinct",
			method: "GET",
			url:    "http://example.com/app/",
			want:   "http/example.com/app/GET_d.bin",
		},
		{
			name:   "dot segments cleaned",
			method: "GET",
			url:    "http://example.com/a/../../b",
			want:   "http/example.com/b/GET.bin",
		},
		{
			name:   "method is part of the key",
			method: "head",
			url:    "http://example.com/",
			want:   "http/example.com/HEAD.bin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, tt.url, nil)
			require.NoError(t, err)

			got, err := GenerateKey(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateKeyDistinctQueries(t *testing.T) {
	// these two queries share the first 32 bits of their sha256
	a, err := http.NewRequest("GET", "https://api.example.com/api?ts=30439", nil)
	require.NoError(t, err)
	b, err := http.NewRequest("GET", "https://api.example.com/api?ts=42650", nil)
	require.NoError(t, err)

	keyA, err := GenerateKey(a)
	require.NoError(t, err)
	keyB, err := GenerateKey(b)
	require.NoError(t, err)
	assert.NotEqual(t, keyA, keyB)

	seen := make(map[string]string)
	for i := range 5000 {
		query := fmt.Sprintf("page=%d&size=%d", i%100, i)
		req, err := http.NewRequest("GET", "https://api.example.com/items?"+query, nil)
		require.NoError(t, err)
		key, err := GenerateKey(req)
		require.NoError(t, err)
		if other, ok := seen[key]; ok {
			t.Fatalf("queries %q and %q share key %s", other, query, key)
		}
		seen[key] = query
	}
}

func TestHTTPCacheDistinctQueriesDoNotShareEntries(t *testing.T) {
	genericCache := cache.NewGenericDisk(t.TempDir())
	require.NoError(t, genericCache.Init())
	httpCache := New(genericCache)

	stored, err := http.NewRequest("GET", "https://api.example.com/api?ts=30439", nil)
	require.NoError(t, err)
	resp := &http.Response{
		StatusCode:    http.StatusOK,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{},
		Body:          io.NopCloser(strings.NewReader("query ts=30439")),
		ContentLength: int64(len("query ts=30439")),
	}
	require.NoError(t, httpCache.SetReq(stored, resp))

	other, err := http.NewRequest("GET", "https://api.example.com/api?ts=42650", nil)
	require.NoError(t, err)
	got, err := httpCache.GetReq(other)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGenerateKeyRelativeURL(t *testing.T) {
	req, err := http.NewRequest("GET", "/index.html", nil)
	require.NoError(t, err)

	_, err = GenerateKey(req)
	assert.Error(t, err)
}

func TestHTTPCacheGetAndSet(t *testing.T) {
	genericCache := cache.NewGenericDisk(t.TempDir())
	require.NoError(t, genericCache.Init())
	httpCache := New(genericCache)

	// Create test request
	req, err := http.NewRequest("GET", "https://example.com/api/users", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	// Test data
	testData := "test response data"
	resp := &http.Response{
		StatusCode:    http.StatusOK,
		ProtoMajor:    1,
		ProtoMinor:    1,
		ContentLength: int64(len(testData)),
		Body:          io.NopCloser(strings.NewReader(testData)),
		Header:        http.Header{"Content-Type": []string{"application/json"}},
	}

	// Test Set
	err = httpCache.SetReq(req, resp)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// the original response must still be readable after being stored
	original, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, testData, string(original))

	// Test Get
	cachedResp, err := httpCache.GetReq(req)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cachedResp == nil {
		t.Fatalf("Get() returned nil response, want cached response")
	}
	assert.Same(t, req, cachedResp.Request)
	assert.Equal(t, http.StatusOK, cachedResp.StatusCode)
	assert.Equal(t, "application/json", cachedResp.Header.Get("Content-Type"))

	// Read the cached response body
	cachedData, err := io.ReadAll(cachedResp.Body)
	if err != nil {
		t.Fatalf("Failed to read cached response body: %v", err)
	}

	if string(cachedData) != testData {
		t.Errorf("Get() data = %s, want %s", string(cachedData), testData)
	}
}

func TestHTTPCacheMiss(t *testing.T) {
	genericCache := cache.NewGenericDisk(t.TempDir())
	require.NoError(t, genericCache.Init())
	httpCache := New(genericCache)

	req, err := http.NewRequest("GET", "https://example.com/missing", nil)
	require.NoError(t, err)

	resp, err := httpCache.GetReq(req)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestHTTPCacheCorruptEntry(t *testing.T) {
	genericCache := cache.NewGenericDisk(t.TempDir())
	require.NoError(t, genericCache.Init())
	httpCache := New(genericCache)

	require.NoError(t, genericCache.Set("http/example.com/GET.bin", []byte("garbage")))

	_, err := httpCache.GetKey("http/example.com/GET.bin")
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestDeserializeShortInput(t *testing.T) {
	_, err := Deserialize([]byte("x"), nil)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)

	_, err = Deserialize([]byte(snapshotHeader+"not a status line"), nil)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}
