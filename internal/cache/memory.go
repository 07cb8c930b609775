package cache

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// MemoryConfig holds Ristretto configuration for the in-memory tier
type MemoryConfig struct {
	MaxCost     int64 // Maximum cost of the tier (bytes)
	NumCounters int64 // Number of counters for TinyLFU admission policy
	BufferItems int64 // Buffer size for async operations
}

// MemoryCache is a read-through Ristretto tier in front of another GenericCache.
// The underlying cache stays the source of truth: Ristretto may drop or refuse
// entries at any time without losing data.
type MemoryCache struct {
	next GenericCache

	// mu guards hot against Close; after Close every call goes straight to next
	mu     sync.RWMutex
	hot    *ristretto.Cache
	closed bool
}

// NewMemory wraps next with a Ristretto tier
func NewMemory(next GenericCache, config MemoryConfig) (*MemoryCache, error) {
	hot, err := ristretto.NewCache(&ristretto.Config{
		MaxCost:     config.MaxCost,
		NumCounters: config.NumCounters,
		BufferItems: config.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory tier: %w", err)
	}
	return &MemoryCache{next: next, hot: hot}, nil
}

func (m *MemoryCache) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.closed {
		if value, found := m.hot.Get(key); found {
			if data, ok := value.([]byte); ok {
				return data, nil
			}
			m.hot.Del(key)
		}
	}

	data, err := m.next.Get(key)
	if err != nil || data == nil || m.closed {
		return data, err
	}
	m.hot.Set(key, data, int64(len(data))+1)
	return data, nil
}

func (m *MemoryCache) Set(key string, value []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.next.Set(key, value); err != nil {
		if !m.closed {
			m.hot.Del(key)
		}
		return err
	}
	if m.closed {
		return nil
	}
	data := append([]byte(nil), value...)
	m.hot.Set(key, data, int64(len(data))+1)
	return nil
}

func (m *MemoryCache) Keys() ([]string, error) {
	return m.next.Keys()
}

func (m *MemoryCache) Init() error {
	return m.next.Init()
}

// Close waits for in-flight calls, then releases the Ristretto goroutines.
// The cache stays usable and reads and writes the underlying cache directly.
func (m *MemoryCache) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.hot.Close()
}

// TieredStorage puts a MemoryCache in front of every store of another Storage
type TieredStorage struct {
	next   Storage
	config MemoryConfig

	mu     sync.Mutex
	stores map[string]*MemoryCache
}

// NewTiered wraps every store opened through next with a memory tier
func NewTiered(next Storage, config MemoryConfig) *TieredStorage {
	return &TieredStorage{
		next:   next,
		config: config,
		stores: make(map[string]*MemoryCache),
	}
}

func (t *TieredStorage) Open(name string) (GenericCache, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if store, ok := t.stores[name]; ok {
		// Open recreates a store that was removed from the backend
		if err := store.Init(); err != nil {
			return nil, err
		}
		return store, nil
	}

	backing, err := t.next.Open(name)
	if err != nil {
		return nil, err
	}
	store, err := NewMemory(backing, t.config)
	if err != nil {
		return nil, err
	}
	t.stores[name] = store
	return store, nil
}

func (t *TieredStorage) Lookup(name string) (GenericCache, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if store, ok := t.stores[name]; ok {
		found, err := t.next.Has(name)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrStoreNotFound
		}
		return store, nil
	}

	backing, err := t.next.Lookup(name)
	if err != nil {
		return nil, err
	}
	store, err := NewMemory(backing, t.config)
	if err != nil {
		return nil, err
	}
	t.stores[name] = store
	return store, nil
}

func (t *TieredStorage) Has(name string) (bool, error) {
	return t.next.Has(name)
}

func (t *TieredStorage) Names() ([]string, error) {
	return t.next.Names()
}

func (t *TieredStorage) Delete(name string) (bool, error) {
	t.mu.Lock()
	if store, ok := t.stores[name]; ok {
		store.Close()
		delete(t.stores, name)
	}
	t.mu.Unlock()

	return t.next.Delete(name)
}

func (t *TieredStorage) Close() error {
	t.mu.Lock()
	for name, store := range t.stores {
		store.Close()
		delete(t.stores, name)
	}
	t.mu.Unlock()

	return t.next.Close()
}
