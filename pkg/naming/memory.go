package naming

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
)

// Memory is an in-process naming store. It stores copies of published
// descriptors so later mutation by the publisher is not observed.
type Memory struct {
	mu       sync.RWMutex
	bindings map[binding]*core.PoolDescriptor
	logger   *zap.Logger
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		bindings: make(map[binding]*core.PoolDescriptor),
		logger:   logger.Get().With(zap.String("component", "naming_memory")),
	}
}

func (m *Memory) Publish(_ context.Context, id core.PoolIdentity, name string, desc *core.PoolDescriptor, overwrite bool) error {
	if desc == nil {
		return poolerrors.New(poolerrors.ErrorTypeInvalidRequest, "descriptor is required").WithPool(id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := bindingFor(id, name)
	if _, exists := m.bindings[key]; exists && !overwrite {
		return alreadyBound(id, name)
	}
	m.bindings[key] = desc.Clone()
	m.logger.Debug("descriptor published", zap.Stringer("pool", id), zap.String("name", name))
	return nil
}

func (m *Memory) Unpublish(_ context.Context, id core.PoolIdentity, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := bindingFor(id, name)
	if _, exists := m.bindings[key]; !exists {
		return notBound(id, name)
	}
	delete(m.bindings, key)
	m.logger.Debug("descriptor unpublished", zap.Stringer("pool", id), zap.String("name", name))
	return nil
}

func (m *Memory) Lookup(_ context.Context, id core.PoolIdentity, name string, _ core.Env) (*core.PoolDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	desc, exists := m.bindings[bindingFor(id, name)]
	if !exists {
		return nil, notBound(id, name)
	}
	return desc.Clone(), nil
}

// List returns the identities of all published pool descriptors.
func (m *Memory) List(context.Context) ([]core.PoolIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]core.PoolIdentity, 0, len(m.bindings))
	for _, desc := range m.bindings {
		ids = append(ids, desc.Identity)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}
