package tests

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/iTrooz/offline-cache-proxy/internal/config"
	"github.com/iTrooz/offline-cache-proxy/internal/proxy"
)

// upstream is a fake application origin that counts the requests it serves
type upstream struct {
	*httptest.Server
	hits atomic.Int64
}

// fixture_upstream creates a test upstream server
func fixture_upstream() *upstream {
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, requ *http.Request) {
		u.hits.Add(1)
		if requ.URL.Path == "/missing" {
			http.NotFound(w, requ)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "Hello from upstream", "method": "` + requ.Method + `", "path": "` + requ.URL.Path + `"}`))
	}))
	return u
}

// fixture_config creates a test config whose agent caches the upstream application
func fixture_config(upstreamURL string, tempDir string, backend string) *config.Config {
	cfg := &config.Config{
		Agent: config.AgentConfig{
			Origin:   upstreamURL + "/",
			Precache: []string{"./", "./index.html", "./manifest.json"},
		},
		Cache: config.CacheConfig{
			Backend: backend,
			Folder:  tempDir,
		},
	}
	cfg.SetDefaults()
	return cfg
}

// fixture_proxy creates a proxy server with the given config and returns the server, test server, and HTTP client
func fixture_proxy(cfg *config.Config) (*proxy.Server, *httptest.Server, *http.Client, error) {
	proxyServer, err := proxy.New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	// Create test proxy HTTP server using goproxy
	proxyTestServer := httptest.NewServer(proxyServer.GetProxy())

	// Create HTTP client that uses our proxy
	proxyURL, _ := url.Parse(proxyTestServer.URL)
	client := &http.Client{
		Transport: &http.Transport{
			Proxy:             http.ProxyURL(proxyURL),
			DisableKeepAlives: true,
		},
		Timeout: 10 * time.Second,
	}

	return proxyServer, proxyTestServer, client, nil
}

// fixtureRule creates a scope rule covering every method under baseURI
func fixtureRule(baseURI string) config.ScopeRule {
	return config.ScopeRule{BaseURI: baseURI}
}
