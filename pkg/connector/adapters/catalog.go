// Package adapters locates resource adapters by module name. Adapter
// packages register a constructor from init; the adapter is built the first
// time a pool asks for it and reused afterwards.
package adapters

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
)

// Constructor builds an adapter.
type Constructor func() (core.Adapter, error)

// Catalog implements core.AdapterResolver over registered constructors.
type Catalog struct {
	constructors map[string]Constructor
	adapters     map[string]core.Adapter
	mu           sync.RWMutex
	logger       *zap.Logger
}

// Global catalog instance
var globalCatalog = NewCatalog()

// NewCatalog creates an empty adapter catalog
func NewCatalog() *Catalog {
	return &Catalog{
		constructors: make(map[string]Constructor),
		adapters:     make(map[string]core.Adapter),
		logger:       logger.Get().With(zap.String("component", "adapter_catalog")),
	}
}

// Register registers the constructor of module.
func (c *Catalog) Register(module string, ctor Constructor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.constructors[module]; exists {
		return poolerrors.Newf(poolerrors.ErrorTypeConfig, "adapter %s already registered", module)
	}
	c.constructors[module] = ctor
	c.logger.Debug("adapter registered", zap.String("module", module))
	return nil
}

// ResolveAdapter returns the adapter of module, constructing it on first use.
func (c *Catalog) ResolveAdapter(_ context.Context, module string) (core.Adapter, error) {
	c.mu.RLock()
	a, ok := c.adapters[module]
	c.mu.RUnlock()
	if ok {
		return a, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.adapters[module]; ok {
		return a, nil
	}
	ctor, exists := c.constructors[module]
	if !exists {
		return nil, poolerrors.Newf(poolerrors.ErrorTypeAdapterNotInitialized, "adapter %s not found", module).
			WithDetail("module", module)
	}

	a, err := ctor()
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeAdapterNotInitialized, "failed to load adapter "+module)
	}
	c.adapters[module] = a
	c.logger.Info("adapter loaded",
		zap.String("module", module),
		zap.Stringer("max_transaction_support", a.TransactionSupport()))
	return a, nil
}

// List returns the registered module names in sorted order.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	modules := make([]string, 0, len(c.constructors))
	for name := range c.constructors {
		modules = append(modules, name)
	}
	sort.Strings(modules)
	return modules
}

// Has checks if a module is registered
func (c *Catalog) Has(module string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.constructors[module]
	return exists
}

// Global catalog functions

// Register registers an adapter constructor in the global catalog
func Register(module string, ctor Constructor) error {
	return globalCatalog.Register(module, ctor)
}

// MustRegister is Register for init functions; it panics on duplicates.
func MustRegister(module string, ctor Constructor) {
	if err := Register(module, ctor); err != nil {
		panic(err)
	}
}

// GetCatalog returns the global catalog instance.
func GetCatalog() *Catalog {
	return globalCatalog
}
