// Package importer downloads the consolidated census tables into a dataset
// directory and keeps a SQLite registry of where each table comes from.
package importer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrUnknownSource is returned by Get for an unregistered adapter ID.
var ErrUnknownSource = errors.New("unknown import source")

// Table names an adapter can produce.
const (
	TableAnimals = "animals"
	TableFarms   = "farms"
)

// Adapter fetches one census table.
type Adapter interface {
	// ID is the registry key, e.g. "ica-bovinos".
	ID() string
	// Table is TableAnimals or TableFarms.
	Table() string
	Description() string
	// DefaultURL seeds the source registry.
	DefaultURL() string
	License() string
	// Import downloads sourceURL, validates it as a census table and
	// installs it in dataDir under the file name the manifest expects.
	Import(ctx context.Context, sourceURL, dataDir string) (Result, error)
}

// Result summarizes one successful import.
type Result struct {
	Path    string
	Rows    int
	Skipped int
	Merged  int
}

var (
	mu       sync.RWMutex
	registry = map[string]Adapter{}
)

// Register makes an adapter available to Get and All. It panics on a
// duplicate ID, like sql.Register.
func Register(a Adapter) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registry[a.ID()]; dup {
		panic("importer: Register called twice for " + a.ID())
	}
	registry[a.ID()] = a
}

func Get(id string) (Adapter, error) {
	mu.RLock()
	a, ok := registry[id]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, id)
	}
	return a, nil
}

// All lists the adapters by ID.
func All() []Adapter {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Adapter, 0, len(registry))
	for _, id := range slices.Sorted(maps.Keys(registry)) {
		out = append(out, registry[id])
	}
	return out
}
