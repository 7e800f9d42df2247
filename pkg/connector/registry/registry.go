package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
)

// entry holds the current metadata snapshot for one identity.
type entry struct {
	md atomic.Pointer[core.PoolRuntimeMetadata]
}

// Registry maps pool identities to their resolved factory and runtime
// metadata. It holds at most one entry per identity. Reads take only the map
// read lock; mutations of one identity are serialized by callers through Lock.
type Registry struct {
	entries map[core.PoolIdentity]*entry
	mu      sync.RWMutex
	locks   *keyedMutex
	logger  *zap.Logger
}

// NewRegistry creates an empty pool registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[core.PoolIdentity]*entry),
		locks:   newKeyedMutex(),
		logger:  logger.Get().With(zap.String("component", "pool_registry")),
	}
}

// Lock acquires the mutation lock for id and returns its release function.
// Different identities never contend.
func (r *Registry) Lock(id core.PoolIdentity) (unlock func()) {
	return r.locks.lock(id)
}

// IsResolved reports whether a factory is registered for id.
func (r *Registry) IsResolved(id core.PoolIdentity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.entries[id]
	return exists
}

// Get returns the metadata snapshot registered for id.
func (r *Registry) Get(id core.PoolIdentity) (*core.PoolRuntimeMetadata, bool) {
	r.mu.RLock()
	e, exists := r.entries[id]
	r.mu.RUnlock()

	if !exists {
		return nil, false
	}
	return e.md.Load(), true
}

// Register stores md for id. It fails if id already has an entry.
func (r *Registry) Register(id core.PoolIdentity, md *core.PoolRuntimeMetadata) error {
	if md == nil || md.Handle == nil {
		return poolerrors.New(poolerrors.ErrorTypeInvalidRequest, "runtime metadata without a factory handle").WithPool(id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return poolerrors.New(poolerrors.ErrorTypeRegistrationConflict, "factory already registered").WithPool(id)
	}

	e := &entry{}
	e.md.Store(md)
	r.entries[id] = e
	r.logger.Debug("factory registered",
		zap.Stringer("pool", id),
		zap.Stringer("handle", md.Handle.ID),
		zap.String("classification", string(md.Classification)))
	return nil
}

// Update replaces the metadata snapshot for id with the result of fn.
// It returns false if nothing is registered for id.
func (r *Registry) Update(id core.PoolIdentity, fn func(*core.PoolRuntimeMetadata) *core.PoolRuntimeMetadata) bool {
	r.mu.RLock()
	e, exists := r.entries[id]
	r.mu.RUnlock()

	if !exists {
		return false
	}
	e.md.Store(fn(e.md.Load()))
	return true
}

// Remove drops the entry for id. It returns false if nothing was registered.
func (r *Registry) Remove(id core.PoolIdentity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; !exists {
		return false
	}
	delete(r.entries, id)
	r.logger.Debug("factory removed", zap.Stringer("pool", id))
	return true
}

// List returns the registered identities sorted by their string form.
func (r *Registry) List() []core.PoolIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]core.PoolIdentity, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Len returns the number of registered pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
