package httpcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/iTrooz/offline-cache-proxy/internal/cache"
)

// HTTPCache stores response snapshots in a GenericCache, keyed by request
type HTTPCache struct {
	cache cache.GenericCache
}

func New(cache cache.GenericCache) *HTTPCache {
	return &HTTPCache{
		cache: cache,
	}
}

// GenerateKey builds the storage key of a request from its method and absolute URL.
// The fragment is ignored and default ports are stripped.
func GenerateKey(request *http.Request) (string, error) {
	u := request.URL
	if u == nil || u.Host == "" {
		return "", fmt.Errorf("request URL must be absolute")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	host := strings.ToLower(u.Host)
	switch scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}

	escaped := u.EscapedPath()
	cleaned := strings.Trim(path.Clean("/"+escaped), "/")

	// Build key: scheme/host/path/METHOD[_qqueryhash][_d].bin
	pathParts := []string{scheme, host}
	if cleaned != "" {
		pathParts = append(pathParts, cleaned)
	}

	method := strings.ToUpper(request.Method)
	if method == "" {
		method = http.MethodGet
	}
	filename := method
	if u.RawQuery != "" {
		hash := sha256.Sum256([]byte(u.RawQuery))
		filename += "_q" + hex.EncodeToString(hash[:])
	}
	// "/app/" and "/app" are distinct resources
	if cleaned != "" && strings.HasSuffix(escaped, "/") {
		filename += "_d"
	}
	filename += ".bin"

	pathParts = append(pathParts, filename)

	return path.Join(pathParts...), nil
}

func (d *HTTPCache) SetReq(request *http.Request, resp *http.Response) error {
	cacheKey, err := GenerateKey(request)
	if err != nil {
		return fmt.Errorf("failed to generate cache key: %w", err)
	}

	return d.SetKey(cacheKey, resp)
}

func (d *HTTPCache) SetKey(requestKey string, resp *http.Response) error {
	data, err := Serialize(resp)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := d.cache.Set(requestKey, data); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

func (d *HTTPCache) GetReq(req *http.Request) (*http.Response, error) {
	requestKey, err := GenerateKey(req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate cache key: %w", err)
	}

	return d.get(requestKey, req)
}

func (d *HTTPCache) GetKey(requestKey string) (*http.Response, error) {
	return d.get(requestKey, nil)
}

func (d *HTTPCache) get(requestKey string, req *http.Request) (*http.Response, error) {
	data, err := d.cache.Get(requestKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}
	if data == nil {
		return nil, nil // Cache miss
	}

	resp, err := Deserialize(data, req)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize response: %w", err)
	}
	return resp, nil
}

// Keys lists the keys of every stored response
func (d *HTTPCache) Keys() ([]string, error) {
	return d.cache.Keys()
}
