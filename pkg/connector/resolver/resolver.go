// Package resolver resolves pool identities to connection factories. A
// resolution looks the pool descriptor up in naming, creates and validates
// the factory through the pool's resource adapter, derives the runtime
// metadata, registers it, and asks the pool manager for a physical pool.
package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/connector/registry"
	"github.com/ajitpratap0/connpool/pkg/connector/validation"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/metrics"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
)

// Resolver resolves and caches connection factories.
type Resolver struct {
	registry  *registry.Registry
	naming    core.Naming
	adapters  core.AdapterResolver
	pools     core.PoolManager
	passwords core.PasswordResolver

	// lazyAssociationDisabled is consulted on every resolution
	lazyAssociationDisabled func() bool

	logger *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithPasswordResolver expands password aliases found in pool properties.
func WithPasswordResolver(p core.PasswordResolver) Option {
	return func(r *Resolver) { r.passwords = p }
}

// WithLazyAssociationSwitch sets the process switch that turns lazy
// connection association off for every pool.
func WithLazyAssociationSwitch(disabled func() bool) Option {
	return func(r *Resolver) { r.lazyAssociationDisabled = disabled }
}

// WithLogger overrides the component logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a resolver over the given collaborators.
func New(reg *registry.Registry, naming core.Naming, adapters core.AdapterResolver, pools core.PoolManager, opts ...Option) *Resolver {
	r := &Resolver{
		registry:                reg,
		naming:                  naming,
		adapters:                adapters,
		pools:                   pools,
		lazyAssociationDisabled: func() bool { return false },
		logger:                  logger.Get().With(zap.String("component", "factory_resolver")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the factory handle for id, creating and registering the
// factory when none is cached. Cached lookups do not take the identity lock.
func (r *Resolver) Resolve(ctx context.Context, id core.PoolIdentity, env core.Env) (*core.FactoryHandle, error) {
	if md, ok := r.registry.Get(id); ok {
		metrics.FactoryResolutions.WithLabelValues("cached").Inc()
		return md.Handle, nil
	}

	unlock := r.registry.Lock(id)
	defer unlock()
	return r.ResolveLocked(ctx, id, env)
}

// ResolveLocked is Resolve for callers already holding the identity lock.
func (r *Resolver) ResolveLocked(ctx context.Context, id core.PoolIdentity, env core.Env) (*core.FactoryHandle, error) {
	if md, ok := r.registry.Get(id); ok {
		metrics.FactoryResolutions.WithLabelValues("cached").Inc()
		return md.Handle, nil
	}

	md, err := r.build(ctx, id, env)
	if err != nil {
		metrics.FactoryResolutions.WithLabelValues("error").Inc()
		r.logger.Warn("factory resolution failed", zap.Stringer("pool", id), zap.Error(err))
		return nil, err
	}

	if err := r.registry.Register(id, md); err != nil {
		metrics.FactoryResolutions.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := r.pools.CreateEmpty(ctx, id, md.Classification, env); err != nil {
		r.registry.Remove(id)
		metrics.FactoryResolutions.WithLabelValues("error").Inc()
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypePool, "failed to allocate physical pool").WithPool(id)
	}

	metrics.FactoryResolutions.WithLabelValues("created").Inc()
	metrics.RegisteredPools.Set(float64(r.registry.Len()))
	r.logger.Info("connection factory created",
		zap.Stringer("pool", id),
		zap.Stringer("handle", md.Handle.ID),
		zap.String("adapter", md.Handle.AdapterModule),
		zap.String("classification", string(md.Classification)),
		zap.Stringer("transaction_support", md.TransactionSupport))
	return md.Handle, nil
}

// Metadata returns the runtime metadata cached for id.
func (r *Resolver) Metadata(id core.PoolIdentity) (*core.PoolRuntimeMetadata, bool) {
	return r.registry.Get(id)
}

// build derives everything needed to register id without touching the registry.
func (r *Resolver) build(ctx context.Context, id core.PoolIdentity, env core.Env) (*core.PoolRuntimeMetadata, error) {
	desc, err := r.lookup(ctx, id, env)
	if err != nil {
		return nil, err
	}

	adapter, err := r.adapters.ResolveAdapter(ctx, desc.AdapterModule)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeAdapterNotInitialized, "resource adapter not initialized").
			WithPool(id).
			WithDetail("adapter", desc.AdapterModule)
	}

	factory, err := r.createFactory(ctx, id, desc, adapter)
	if err != nil {
		return nil, err
	}

	principal := r.DefaultPrincipal(id, desc.Properties, factory)

	tx, err := NegotiateTransactionSupport(adapter, factory, desc)
	if err != nil {
		return nil, err
	}

	lazyEnlist, lazyAssoc := desc.LazyEnlist, desc.LazyAssociate
	if desc.NonComponent || desc.NonTransactional {
		lazyEnlist, lazyAssoc = false, false
	}
	if lazyAssoc && r.lazyAssociationDisabled() {
		r.logger.Debug("lazy association disabled by compatibility switch", zap.Stringer("pool", id))
		lazyAssoc = false
	}

	return &core.PoolRuntimeMetadata{
		Identity:           id,
		Handle:             core.NewFactoryHandle(factory, adapter.ModuleName()),
		Classification:     core.Classify(desc),
		DefaultPrincipal:   principal,
		DefaultSubject:     core.NewSubject(factory, principal),
		TransactionSupport: tx,
		NonComponent:       desc.NonComponent,
		NonTransactional:   desc.NonTransactional,
		LazyEnlistable:     lazyEnlist,
		LazyAssociable:     lazyAssoc,
		SecurityMaps:       desc.Clone().SecurityMaps,
	}, nil
}

func (r *Resolver) lookup(ctx context.Context, id core.PoolIdentity, env core.Env) (*core.PoolDescriptor, error) {
	desc, err := r.naming.Lookup(ctx, id, id.ReservedName(), env)
	if err != nil {
		if poolerrors.IsNotBound(err) {
			return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeNotBound, "pool descriptor not bound").
				WithPool(id).
				WithDetail("name", id.ReservedName())
		}
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "pool descriptor lookup failed").WithPool(id)
	}
	if desc == nil {
		return nil, poolerrors.New(poolerrors.ErrorTypeNotBound, "pool descriptor not bound").WithPool(id)
	}
	return desc, nil
}

func (r *Resolver) createFactory(ctx context.Context, id core.PoolIdentity, desc *core.PoolDescriptor, adapter core.Adapter) (core.Factory, error) {
	schema := adapter.Schema()
	if err := validation.ValidateProperties(schema, desc.Properties); err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeFactoryCreationFailed, "invalid factory properties").WithPool(id)
	}

	factory, err := adapter.CreateFactory(ctx, desc, adapter.Loader())
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeFactoryCreationFailed, "adapter rejected factory configuration").
			WithPool(id).
			WithDetail("adapter", adapter.ModuleName())
	}
	if factory == nil {
		return nil, poolerrors.New(poolerrors.ErrorTypeFactoryCreationFailed, "adapter returned no factory").
			WithPool(id).
			WithDetail("adapter", adapter.ModuleName())
	}

	if err := validation.ValidateFactory(schema, factory); err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeFactoryCreationFailed, "factory failed bean validation").WithPool(id)
	}
	return factory, nil
}
