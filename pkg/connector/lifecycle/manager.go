// Package lifecycle creates, deletes, recreates and reconfigures connection
// pools. Every mutation of a pool runs under the identity lock of the pool
// registry, so concurrent administrative calls on one pool are serialized
// while calls on different pools proceed independently.
//
// Failed creations are rolled back: the descriptor published in naming is
// removed again before the error is returned. Rollback failures are logged
// and counted but never replace the original error.
package lifecycle

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/connector/reconfig"
	"github.com/ajitpratap0/connpool/pkg/connector/registry"
	"github.com/ajitpratap0/connpool/pkg/connector/resolver"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/metrics"
	"github.com/ajitpratap0/connpool/pkg/observability"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
)

// Manager runs pool lifecycle operations.
type Manager struct {
	registry *registry.Registry
	resolver *resolver.Resolver
	naming   core.Naming
	pools    core.PoolManager
	tracer   *observability.PoolTracer
	logger   *zap.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger overrides the component logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a lifecycle manager. The resolver must share reg.
func NewManager(reg *registry.Registry, res *resolver.Resolver, naming core.Naming, pools core.PoolManager, opts ...Option) *Manager {
	m := &Manager{
		registry: reg,
		resolver: res,
		naming:   naming,
		pools:    pools,
		tracer:   observability.NewPoolTracer("lifecycle"),
		logger:   logger.Get().With(zap.String("component", "pool_lifecycle")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create publishes desc and resolves its connection factory. A pool whose
// factory is still registered must be deleted or released first.
func (m *Manager) Create(ctx context.Context, desc *core.PoolDescriptor, env core.Env) error {
	if err := validate(desc); err != nil {
		return err
	}
	id := desc.Identity

	return m.tracer.Trace(ctx, "create", id, func(ctx context.Context) error {
		unlock := m.registry.Lock(id)
		defer unlock()

		if m.registry.IsResolved(id) {
			return poolerrors.New(poolerrors.ErrorTypeRegistrationConflict, "pool already exists").WithPool(id)
		}
		if err := m.publishAndResolve(ctx, "create", desc, env); err != nil {
			return err
		}
		m.logger.Info("pool created", zap.Stringer("pool", id))
		return nil
	})
}

// Delete kills the physical pool, drops the cached factory and unpublishes
// the descriptor. Deleting an absent pool succeeds. Callers passing
// cascade=false must have checked that no resource references the pool.
func (m *Manager) Delete(ctx context.Context, id core.PoolIdentity, cascade bool) error {
	if err := id.Validate(); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeInvalidRequest, "invalid pool identity").WithPool(id)
	}

	return m.tracer.Trace(ctx, "delete", id, func(ctx context.Context) error {
		unlock := m.registry.Lock(id)
		defer unlock()

		if err := m.unload(ctx, id); err != nil {
			return err
		}
		m.logger.Info("pool deleted", zap.Stringer("pool", id), zap.Bool("cascade", cascade))
		return nil
	})
}

// Recreate replaces the pool with one built from desc. On failure nothing
// of the pool remains registered or published.
func (m *Manager) Recreate(ctx context.Context, desc *core.PoolDescriptor, env core.Env) error {
	if err := validate(desc); err != nil {
		return err
	}
	id := desc.Identity

	return m.tracer.Trace(ctx, "recreate", id, func(ctx context.Context) error {
		unlock := m.registry.Lock(id)
		defer unlock()

		if err := m.unload(ctx, id); err != nil {
			return err
		}
		if err := m.publishAndResolve(ctx, "recreate", desc, env); err != nil {
			return err
		}
		m.logger.Info("pool recreated", zap.Stringer("pool", id))
		return nil
	})
}

// Reconfigure compares proposed with the published descriptor. Attribute
// updates are applied in place; when the pool has to be recreated the
// action is returned and nothing is changed.
func (m *Manager) Reconfigure(ctx context.Context, proposed *core.PoolDescriptor, excluded []string) (core.ReconfigAction, error) {
	if err := validate(proposed); err != nil {
		return core.NoChange, err
	}
	id := proposed.Identity
	action := core.NoChange

	err := m.tracer.Trace(ctx, "reconfigure", id, func(ctx context.Context) error {
		unlock := m.registry.Lock(id)
		defer unlock()

		current, err := m.lookup(ctx, id)
		if err != nil {
			return err
		}

		action = reconfig.Compare(current, proposed, excluded)
		metrics.ReconfigActions.WithLabelValues(action.String()).Inc()
		m.logger.Debug("reconfiguration decided",
			zap.Stringer("pool", id),
			zap.Stringer("action", action))

		if action != core.UpdateAttributes {
			return nil
		}
		return m.updateAttributes(ctx, current, proposed, excluded)
	})
	return action, err
}

func (m *Manager) updateAttributes(ctx context.Context, current, proposed *core.PoolDescriptor, excluded []string) error {
	id := current.Identity
	live := current.Clone()
	changed := reconfig.ApplyAttributes(live, proposed, excluded)

	// publish only once the pool and factory accepted the change
	md, resolved := m.registry.Get(id)
	if resolved {
		if err := m.pools.ReconfigureAttributes(ctx, live); err != nil {
			return poolerrors.Wrap(err, poolerrors.ErrorTypePool, "failed to reconfigure physical pool").WithPool(id)
		}
		for _, p := range changed {
			if err := md.Handle.Factory.SetProperty(p.Name, p.Value); err != nil {
				return poolerrors.Wrap(err, poolerrors.ErrorTypeFactoryCreationFailed, "factory rejected property").
					WithPool(id).
					WithDetail("property", p.Name)
			}
		}
	}

	if err := m.naming.Publish(ctx, id, id.ReservedName(), live, true); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "failed to publish updated descriptor").WithPool(id)
	}
	if !resolved {
		// the next resolution picks the published descriptor up
		return nil
	}

	m.registry.Update(id, func(md *core.PoolRuntimeMetadata) *core.PoolRuntimeMetadata {
		return md.WithFlags(live.NonComponent, live.NonTransactional)
	})

	logger.WithContext(ctx, m.logger).Info("pool attributes updated",
		zap.Int("properties_applied", len(changed)))
	return nil
}

// Kill destroys the physical pool but keeps the cached factory and the
// published descriptor.
func (m *Manager) Kill(ctx context.Context, id core.PoolIdentity) error {
	return m.tracer.Trace(ctx, "kill", id, func(ctx context.Context) error {
		if err := m.pools.Kill(ctx, id); err != nil {
			return poolerrors.Wrap(err, poolerrors.ErrorTypePool, "failed to kill pool").WithPool(id)
		}
		return nil
	})
}

// Flush drops the idle connections of a pool. It reports false when no
// physical pool exists.
func (m *Manager) Flush(ctx context.Context, id core.PoolIdentity) (bool, error) {
	var flushed bool
	err := m.tracer.Trace(ctx, "flush", id, func(ctx context.Context) error {
		var err error
		flushed, err = m.pools.Flush(ctx, id)
		if err != nil {
			return poolerrors.Wrap(err, poolerrors.ErrorTypePool, "failed to flush pool").WithPool(id)
		}
		return nil
	})
	return flushed, err
}

// SwitchOnMatching turns connection matching on for a live pool.
func (m *Manager) SwitchOnMatching(ctx context.Context, id core.PoolIdentity) (bool, error) {
	switched, err := m.pools.SwitchOnMatching(ctx, id)
	if err != nil {
		return false, poolerrors.Wrap(err, poolerrors.ErrorTypePool, "failed to switch on matching").WithPool(id)
	}
	return switched, nil
}

// Release unloads the cached factory and physical pool of id, keeping the
// published descriptor so the pool can be resolved again.
func (m *Manager) Release(ctx context.Context, id core.PoolIdentity) error {
	unlock := m.registry.Lock(id)
	defer unlock()

	if !m.registry.IsResolved(id) {
		return nil
	}
	if err := m.pools.Kill(ctx, id); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypePool, "failed to kill pool").WithPool(id)
	}
	m.registry.Remove(id)
	metrics.RegisteredPools.Set(float64(m.registry.Len()))
	m.logger.Debug("cached factory released", zap.Stringer("pool", id))
	return nil
}

// IsDeployed reports whether a descriptor is published for id.
func (m *Manager) IsDeployed(ctx context.Context, id core.PoolIdentity) (bool, error) {
	_, err := m.naming.Lookup(ctx, id, id.ReservedName(), nil)
	switch {
	case err == nil:
		return true, nil
	case poolerrors.IsNotBound(err):
		return false, nil
	default:
		return false, poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "pool descriptor lookup failed").WithPool(id)
	}
}

// Classification returns the pooling strategy of id, from the cached
// metadata when resolved and from the published descriptor otherwise.
func (m *Manager) Classification(ctx context.Context, id core.PoolIdentity) (core.Classification, error) {
	if md, ok := m.registry.Get(id); ok {
		return md.Classification, nil
	}
	desc, err := m.lookup(ctx, id)
	if err != nil {
		return "", err
	}
	return core.Classify(desc), nil
}

// Descriptor returns the published descriptor of id.
func (m *Manager) Descriptor(ctx context.Context, id core.PoolIdentity) (*core.PoolDescriptor, error) {
	return m.lookup(ctx, id)
}

// Pools returns the identities of resolved pools.
func (m *Manager) Pools() []core.PoolIdentity {
	return m.registry.List()
}

// Stats returns physical pool statistics of id.
func (m *Manager) Stats(id core.PoolIdentity) (core.PoolStats, bool) {
	return m.pools.Stats(id)
}

// publishAndResolve must be called with the identity lock held.
func (m *Manager) publishAndResolve(ctx context.Context, operation string, desc *core.PoolDescriptor, env core.Env) error {
	id := desc.Identity
	if err := m.naming.Publish(ctx, id, id.ReservedName(), desc, true); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "failed to publish pool descriptor").WithPool(id)
	}

	if _, err := m.resolver.ResolveLocked(ctx, id, env); err != nil {
		m.rollback(ctx, operation, id)
		return err
	}
	return nil
}

// rollback unpublishes the descriptor of a pool whose creation failed.
func (m *Manager) rollback(ctx context.Context, operation string, id core.PoolIdentity) {
	if err := m.naming.Unpublish(ctx, id, id.ReservedName()); err != nil && !poolerrors.IsNotBound(err) {
		metrics.RollbackFailures.WithLabelValues(operation).Inc()
		logger.WithContext(ctx, m.logger).Warn("failed to unpublish descriptor after failed "+operation,
			zap.Error(err))
	}
}

// unload must be called with the identity lock held. Missing pieces are
// not errors.
func (m *Manager) unload(ctx context.Context, id core.PoolIdentity) error {
	if err := m.pools.Kill(ctx, id); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypePool, "failed to kill pool").WithPool(id)
	}

	if m.registry.Remove(id) {
		metrics.RegisteredPools.Set(float64(m.registry.Len()))
	}

	if err := m.naming.Unpublish(ctx, id, id.ReservedName()); err != nil && !poolerrors.IsNotBound(err) {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "failed to unpublish pool descriptor").WithPool(id)
	}
	return nil
}

func (m *Manager) lookup(ctx context.Context, id core.PoolIdentity) (*core.PoolDescriptor, error) {
	desc, err := m.naming.Lookup(ctx, id, id.ReservedName(), nil)
	if err != nil {
		if poolerrors.IsNotBound(err) {
			return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeNotBound, "pool descriptor not bound").WithPool(id)
		}
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "pool descriptor lookup failed").WithPool(id)
	}
	return desc, nil
}

func validate(desc *core.PoolDescriptor) error {
	if desc == nil {
		return poolerrors.New(poolerrors.ErrorTypeInvalidRequest, "pool descriptor is required")
	}
	if err := desc.Validate(); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeInvalidRequest, "invalid pool descriptor").WithPool(desc.Identity)
	}
	return nil
}
