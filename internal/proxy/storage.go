package proxy

import (
	"fmt"
	"path/filepath"

	"github.com/iTrooz/offline-cache-proxy/internal/cache"
	"github.com/iTrooz/offline-cache-proxy/internal/config"
)

// newStorage builds the store backend selected in the configuration
func newStorage(cfg config.CacheConfig) (cache.Storage, error) {
	var storage cache.Storage
	switch cfg.Backend {
	case "", "disk":
		disk, err := cache.NewDiskStorage(cfg.Folder)
		if err != nil {
			return nil, err
		}
		storage = disk
	case "sqlite":
		db, err := cache.NewSQLiteStorage(filepath.Join(cfg.Folder, "stores.db"))
		if err != nil {
			return nil, err
		}
		storage = db
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}

	if cfg.Memory.Enabled {
		storage = cache.NewTiered(storage, cache.MemoryConfig{
			MaxCost:     cfg.Memory.MaxCost,
			NumCounters: cfg.Memory.NumCounters,
			BufferItems: cfg.Memory.BufferItems,
		})
	}
	return storage, nil
}
