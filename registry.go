package eventsourcing

import (
	"fmt"
	"sync"
)

// BackendFactory constructs a Backend for the given dsn (a file path or the
// literal ":memory:"). Backend implementations register themselves here
// from an init() function, the same pattern database/sql drivers use to
// register with sql.Register — it lets this package expose a convenient
// Open(dbPath) without importing the leaf storage packages, which would
// create an import cycle (they import eventsourcing for the types Backend
// speaks in).
type BackendFactory func(dsn string) (Backend, error)

var (
	backendRegistryMu sync.RWMutex
	backendRegistry   = make(map[string]BackendFactory)
)

// RegisterBackend makes factory available under driver for System.Open and
// NewBackend. Intended to be called from a storage package's init().
// Panics on duplicate registration, matching database/sql.Register's
// fail-fast convention for a startup-time, not-thread-safe operation.
func RegisterBackend(driver string, factory BackendFactory) {
	backendRegistryMu.Lock()
	defer backendRegistryMu.Unlock()
	if _, exists := backendRegistry[driver]; exists {
		panic(fmt.Sprintf("eventsourcing: backend driver %q already registered", driver))
	}
	backendRegistry[driver] = factory
}

// NewBackend constructs a Backend using the factory registered under
// driver. Callers must import the storage package that registers driver
// (e.g. blank-import "github.com/lattice-run/eventsourcing/storage/sqlite")
// before calling this.
func NewBackend(driver, dsn string) (Backend, error) {
	backendRegistryMu.RLock()
	factory, ok := backendRegistry[driver]
	backendRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("eventsourcing: no backend registered for driver %q (forgot a blank import?)", driver)
	}
	return factory(dsn)
}
