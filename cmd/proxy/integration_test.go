package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProxyIntegration(t *testing.T) {
	t.Cleanup(func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.InfoLevel)
	})

	// Create a test upstream server
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "Hello from upstream", "path": "` + r.URL.Path + `"}`))
	}))
	defer upstream.Close()

	tempDir := t.TempDir()
	configPath := writeConfig(t, fmt.Sprintf(`
agent:
  name: demo
  version: v3
  origin: %s/
  precache:
    - ./
    - ./index.html
cache:
  backend: sqlite
  folder: %s
  memory:
    enabled: true
log:
  level: warn
  file: %s
`, upstream.URL, tempDir, filepath.Join(tempDir, "proxy.log")))

	proxyServer, err := setup(configPath)
	if err != nil {
		t.Fatalf("Failed to create proxy server: %v", err)
	}
	defer func() { _ = proxyServer.Close() }()
	require.NoError(t, proxyServer.Install(t.Context()))

	// Create test proxy HTTP server using goproxy
	proxyTestServer := httptest.NewServer(proxyServer.GetProxy())
	defer proxyTestServer.Close()

	// Create HTTP client that uses our proxy
	proxyURL, _ := url.Parse(proxyTestServer.URL)
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
		Timeout: 10 * time.Second,
	}

	t.Run("precached request - cache hit", func(t *testing.T) {
		resp, err := client.Get(upstream.URL + "/index.html")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}

		if resp.Header.Get("X-Cache") != "HIT" {
			t.Errorf("Expected X-Cache: HIT, got %s", resp.Header.Get("X-Cache"))
		}

		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "Hello from upstream") {
			t.Errorf("Unexpected response body: %s", string(body))
		}
	})

	t.Run("first request - cache miss", func(t *testing.T) {
		resp, err := client.Get(upstream.URL + "/test")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.Header.Get("X-Cache") != "MISS" {
			t.Errorf("Expected X-Cache: MISS, got %s", resp.Header.Get("X-Cache"))
		}
	})

	t.Run("second request - cache hit", func(t *testing.T) {
		proxyServer.Agent().Wait()

		resp, err := client.Get(upstream.URL + "/test")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.Header.Get("X-Cache") != "HIT" {
			t.Errorf("Expected X-Cache: HIT, got %s", resp.Header.Get("X-Cache"))
		}
	})

	t.Run("verify store database exists", func(t *testing.T) {
		expectedPath := filepath.Join(tempDir, "stores.db")
		if _, err := os.Stat(expectedPath); err != nil {
			t.Errorf("Store database should exist at %s", expectedPath)
		}
	})
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	configPath := writeConfig(t, `
agent:
  origin: not-a-url
cache:
  folder: /tmp/unused
`)
	_, err := setup(configPath)
	require.Error(t, err)
}
