// Package unpooled creates connections outside of any physical pool. They
// are used to test pool configurations and for diagnostics; the caller owns
// every connection it receives and must destroy or close it.
package unpooled

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/connector/resolver"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/metrics"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
)

// Releaser unloads the cached factory of a pool.
type Releaser interface {
	Release(ctx context.Context, id core.PoolIdentity) error
}

// Provider hands out unpooled connections.
type Provider struct {
	resolver *resolver.Resolver
	releaser Releaser
	naming   core.Naming
	catalog  core.ResourceCatalog
	deployer core.ResourceDeployer
	logger   *zap.Logger
}

// Option configures a Provider
type Option func(*Provider)

// WithLogger overrides the component logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a provider. Pools that are not deployed yet are
// materialized through deployer for the duration of a single call.
func NewProvider(res *resolver.Resolver, releaser Releaser, naming core.Naming, catalog core.ResourceCatalog, deployer core.ResourceDeployer, opts ...Option) *Provider {
	p := &Provider{
		resolver: res,
		releaser: releaser,
		naming:   naming,
		catalog:  catalog,
		deployer: deployer,
		logger:   logger.Get().With(zap.String("component", "unpooled_provider")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get creates a connection to the resource behind pool id. A nil principal
// selects the pool's default credentials. With returnHandle the logical
// connection handle is returned, otherwise the core.ManagedConnection.
func (p *Provider) Get(ctx context.Context, id core.PoolIdentity, principal *core.Principal, returnHandle bool) (conn interface{}, err error) {
	defer func() {
		metrics.TestConnections.WithLabelValues(metrics.Status(err)).Inc()
	}()

	if !p.catalog.IsPoolReferenced(id) {
		if _, cached := p.resolver.Metadata(id); cached {
			if err := p.releaser.Release(ctx, id); err != nil {
				return nil, testFailed(err, id, "failed to release unreferenced pool")
			}
		}
	}

	handle, err := p.resolver.Resolve(ctx, id, nil)
	if poolerrors.IsNotBound(err) {
		var undeploy func()
		handle, undeploy, err = p.resolveDeployed(ctx, id)
		if undeploy != nil {
			defer undeploy()
		}
	}
	if err != nil {
		return nil, testFailed(err, id, "failed to resolve connection factory")
	}

	if principal == nil {
		desc, err := p.naming.Lookup(ctx, id, id.ReservedName(), nil)
		if err != nil {
			return nil, testFailed(err, id, "failed to look up pool descriptor")
		}
		def := p.resolver.DefaultPrincipal(id, desc.Properties, handle.Factory)
		principal = &def
	}

	subject := core.NewSubject(handle.Factory, *principal)
	mc, err := handle.Factory.CreateManagedConnection(ctx, subject)
	if err != nil {
		return nil, testFailed(err, id, "failed to create connection")
	}
	mc.AddConnectionEventListener(closeObserver{})

	p.logger.Debug("unpooled connection created",
		zap.Stringer("pool", id),
		zap.String("user", principal.Username))

	if !returnHandle {
		return mc, nil
	}
	h, err := mc.Connection(ctx, subject)
	if err != nil {
		if derr := mc.Destroy(ctx); derr != nil {
			p.logger.Warn("failed to destroy connection", zap.Stringer("pool", id), zap.Error(derr))
		}
		return nil, testFailed(err, id, "failed to obtain connection handle")
	}
	return h, nil
}

// resolveDeployed deploys the configuration of id, resolves it again and
// returns the function undoing the deployment.
func (p *Provider) resolveDeployed(ctx context.Context, id core.PoolIdentity) (*core.FactoryHandle, func(), error) {
	cfg, ok := p.catalog.PoolConfig(id)
	if !ok {
		return nil, nil, poolerrors.New(poolerrors.ErrorTypeNotBound, "pool is neither deployed nor configured").WithPool(id)
	}

	p.logger.Info("deploying pool for test connection", zap.Stringer("pool", id))
	if err := p.deployer.Deploy(ctx, cfg); err != nil {
		return nil, nil, err
	}
	undeploy := func() {
		if err := p.deployer.Undeploy(ctx, cfg); err != nil {
			metrics.RollbackFailures.WithLabelValues("undeploy").Inc()
			p.logger.Warn("failed to undeploy temporarily deployed pool",
				zap.Stringer("pool", id),
				zap.Error(err))
		}
	}

	handle, err := p.resolver.Resolve(ctx, id, nil)
	return handle, undeploy, err
}

// TestPool creates an unpooled connection with the default credentials,
// pings it and destroys it.
func (p *Provider) TestPool(ctx context.Context, id core.PoolIdentity) error {
	conn, err := p.Get(ctx, id, nil, false)
	if err != nil {
		return err
	}
	mc := conn.(core.ManagedConnection)
	defer func() {
		if err := mc.Destroy(ctx); err != nil {
			p.logger.Warn("failed to destroy test connection", zap.Stringer("pool", id), zap.Error(err))
		}
	}()

	if err := mc.Ping(ctx); err != nil {
		return testFailed(err, id, "ping failed")
	}
	return nil
}

// GetConnection returns a connection handle for the pool behind a resource
// name. A nil user selects the pool's default credentials; a nil password
// is treated as empty.
func (p *Provider) GetConnection(ctx context.Context, resourceName, application, module string, user, password *string) (interface{}, error) {
	id, ok := p.catalog.PoolForResource(resourceName, application, module)
	if !ok {
		return nil, poolerrors.Newf(poolerrors.ErrorTypeTestConnectionFailed, "resource %s not found", resourceName).
			WithDetail("resource", resourceName)
	}

	var principal *core.Principal
	if user != nil {
		principal = &core.Principal{Username: *user}
		if password != nil {
			principal.Password = *password
		}
	}
	return p.Get(ctx, id, principal, true)
}

func testFailed(err error, id core.PoolIdentity, message string) error {
	return poolerrors.Wrap(err, poolerrors.ErrorTypeTestConnectionFailed, message).WithPool(id)
}

// closeObserver is registered on unpooled connections so adapters that
// expect a listener find one. It ignores every event.
type closeObserver struct{}

func (closeObserver) ConnectionClosed(core.ConnectionEvent) {}

func (closeObserver) ConnectionErrorOccurred(core.ConnectionEvent) {}
