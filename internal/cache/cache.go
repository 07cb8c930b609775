package cache

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStoreNotFound is returned when a named store does not exist
var ErrStoreNotFound = errors.New("store not found")

// Storage holds a set of named stores, each one a GenericCache
type Storage interface {
	// Open returns the named store, creating it if absent
	Open(name string) (GenericCache, error)
	// Lookup returns the named store only if it exists, ErrStoreNotFound otherwise
	Lookup(name string) (GenericCache, error)
	// Has reports whether the named store exists
	Has(name string) (bool, error)
	// Names lists every existing store
	Names() ([]string, error)
	// Delete destroys the named store and all its entries.
	// returns false when there was nothing to delete
	Delete(name string) (bool, error)
	Close() error
}

func validateStoreName(name string) error {
	if name == "" {
		return errors.New("store name is required")
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid store name: %q", name)
	}
	return nil
}
