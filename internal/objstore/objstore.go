// Package objstore is the object-store seam the job reads catalogs and
// mapping configs from and writes NDJSON outputs to.
//
// Backends register themselves from init() in their own packages
// (objstore/filestore, objstore/blobstore); binaries select them by importing
// the backend packages for side effects.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned (wrapped) by Get when the key does not exist.
var ErrNotFound = errors.New("objstore: object not found")

// Config selects and configures a backend.
//
// Edge cases:
//   - Kind must match a registered backend ("file", "azblob").
//   - Root is the base directory for "file".
//   - ConnectionString and Container are used by "azblob".
type Config struct {
	Kind             string
	Root             string
	ConnectionString string
	Container        string
}

// Store reads and writes whole objects by key. Keys use "/" separators.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Location renders key as a human readable URI for summaries and logs.
	Location(key string) string
}

// Factory builds a Store from cfg.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind.
//
// Panics:
//   - If kind is empty, f is nil or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("objstore: Register called with empty kind")
	}
	if f == nil {
		panic("objstore: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("objstore: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open constructs the Store for cfg.Kind.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("objstore: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("objstore: unsupported kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
