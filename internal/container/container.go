// Package container wires the pool engine together from settings and a
// resources file.
package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/connector/adapters"
	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/connector/lifecycle"
	"github.com/ajitpratap0/connpool/pkg/connector/registry"
	"github.com/ajitpratap0/connpool/pkg/connector/resolver"
	"github.com/ajitpratap0/connpool/pkg/connector/unpooled"
	"github.com/ajitpratap0/connpool/pkg/deployer"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/naming"
	"github.com/ajitpratap0/connpool/pkg/physicalpool"

	// Import all adapters to trigger init() registration
	_ "github.com/ajitpratap0/connpool/pkg/connector/adapters/all"
)

// Container holds the wired components.
type Container struct {
	Settings  *config.Settings
	Naming    core.Naming
	Registry  *registry.Registry
	Pools     *physicalpool.Manager
	Resolver  *resolver.Resolver
	Lifecycle *lifecycle.Manager
	Catalog   *deployer.Catalog
	Deployer  *deployer.Deployer
	Unpooled  *unpooled.Provider
	Health    *HealthChecker

	logger  *zap.Logger
	closers []func() error
}

// Option configures a Container.
type Option func(*options)

type options struct {
	adapters core.AdapterResolver
	naming   core.Naming
	logger   *zap.Logger
}

// WithAdapters replaces the global adapter catalog.
func WithAdapters(a core.AdapterResolver) Option {
	return func(o *options) { o.adapters = a }
}

// WithNaming replaces the naming service selected by the settings.
func WithNaming(n core.Naming) Option {
	return func(o *options) { o.naming = n }
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New wires a container. Nothing is deployed until Start.
func New(settings *config.Settings, res *config.Resources, opts ...Option) (*Container, error) {
	o := &options{adapters: adapters.GetCatalog(), logger: logger.Get()}
	for _, opt := range opts {
		opt(o)
	}
	if res == nil {
		res = &config.Resources{}
	}

	c := &Container{Settings: settings, logger: o.logger.With(zap.String("component", "container"))}

	c.Naming = o.naming
	if c.Naming == nil {
		n, err := openNaming(settings.Naming)
		if err != nil {
			return nil, err
		}
		if p, ok := n.(*naming.Pebble); ok {
			c.closers = append(c.closers, p.Close)
		}
		c.Naming = n
	}

	catalog, err := deployer.NewCatalog(res)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Catalog = catalog

	c.Registry = registry.NewRegistry()
	c.Pools = physicalpool.NewManager(c.Registry, c.Naming)
	c.Resolver = resolver.New(c.Registry, c.Naming, o.adapters, c.Pools,
		resolver.WithPasswordResolver(config.NewAliasResolver(settings.PasswordAliases)),
		resolver.WithLazyAssociationSwitch(settings.LazyAssociationDisabled),
		resolver.WithLogger(o.logger.With(zap.String("component", "factory_resolver"))),
	)
	c.Lifecycle = lifecycle.NewManager(c.Registry, c.Resolver, c.Naming, c.Pools,
		lifecycle.WithLogger(o.logger.With(zap.String("component", "pool_lifecycle"))))
	c.Deployer = deployer.New(catalog, c.Lifecycle,
		deployer.WithLogger(o.logger.With(zap.String("component", "deployer"))))
	c.Unpooled = unpooled.NewProvider(c.Resolver, c.Lifecycle, c.Naming, catalog, c.Deployer,
		unpooled.WithLogger(o.logger.With(zap.String("component", "unpooled_provider"))))
	c.Health = NewHealthChecker(settings.HealthCheck.Interval, settings.HealthCheck.Timeout,
		c.Lifecycle.Pools, c.Ping)
	return c, nil
}

func openNaming(s config.NamingSettings) (core.Naming, error) {
	switch s.Store {
	case "", "memory":
		return naming.NewMemory(), nil
	case "pebble":
		p, err := naming.OpenPebble(s.Path)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown naming store %q", s.Store)
	}
}

// Start deploys every configured pool and resource, prefills the physical
// pools and starts health checks.
func (c *Container) Start(ctx context.Context) error {
	if err := c.Deployer.DeployAll(ctx); err != nil {
		return err
	}
	for _, id := range c.Lifecycle.Pools() {
		if err := c.Pools.Prefill(ctx, id); err != nil {
			c.logger.Warn("failed to prefill pool", zap.Stringer("pool", id), zap.Error(err))
		}
	}
	c.Health.Start(ctx)
	c.logger.Info("container started", zap.Int("pools", c.Registry.Len()))
	return nil
}

// Ping checks out a connection of id, pings it and returns it.
func (c *Container) Ping(ctx context.Context, id core.PoolIdentity) error {
	conn, err := c.Pools.Acquire(ctx, id)
	if err != nil {
		return err
	}
	if err := conn.ManagedConnection().Ping(ctx); err != nil {
		conn.Destroy()
		return err
	}
	conn.Release()
	return nil
}

// Shutdown stops health checks and undeploys everything.
func (c *Container) Shutdown(ctx context.Context) error {
	c.Health.Stop()
	err := c.Deployer.UndeployAll(ctx)
	c.Pools.Close()
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the naming store.
func (c *Container) Close() error {
	var first error
	for _, closer := range c.closers {
		if err := closer(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}
