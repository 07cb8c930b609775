// Handles caching of HTTP responses
package cache

// GenericCache interface for caching operations
type GenericCache interface {
	// retrieves cached response data if it exists.
	// returns nil, nil when not found
	Get(key string) ([]byte, error)
	// stores response data in the cache under the specified key
	Set(key string, value []byte) error
	// lists every key currently stored
	Keys() ([]string, error)
	// initializes the cache (e.g., creates necessary directories)
	Init() error
}
