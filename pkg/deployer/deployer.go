package deployer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
)

// Lifecycle is the part of the pool lifecycle the deployer drives.
type Lifecycle interface {
	Create(ctx context.Context, desc *core.PoolDescriptor, env core.Env) error
	Delete(ctx context.Context, id core.PoolIdentity, cascade bool) error
	IsDeployed(ctx context.Context, id core.PoolIdentity) (bool, error)
}

// Deployer deploys pools and resources of a catalog. Pools are created
// through the lifecycle; a pool is deleted once no deployed resource
// references it any more.
type Deployer struct {
	catalog   *Catalog
	lifecycle Lifecycle
	logger    *zap.Logger

	mu       sync.Mutex
	deployed map[string]core.PoolIdentity
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithLogger sets the deployer logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Deployer) { d.logger = l }
}

// New creates a deployer for the catalog.
func New(catalog *Catalog, lc Lifecycle, opts ...Option) *Deployer {
	d := &Deployer{
		catalog:   catalog,
		lifecycle: lc,
		logger:    logger.With(zap.String("component", "deployer")),
		deployed:  make(map[string]core.PoolIdentity),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Catalog returns the catalog being deployed.
func (d *Deployer) Catalog() *Catalog {
	return d.catalog
}

// Deploy deploys a pool or a resource. Deploying a resource deploys its pool
// first when needed.
func (d *Deployer) Deploy(ctx context.Context, cfg core.ResourceConfig) error {
	if cfg.IsPool() {
		return d.lifecycle.Create(ctx, cfg.Descriptor, nil)
	}
	if !cfg.Enabled {
		d.logger.Debug("skipping disabled resource", zap.String("resource", cfg.Name))
		return nil
	}

	deployed, err := d.lifecycle.IsDeployed(ctx, cfg.Pool)
	if err != nil {
		return err
	}
	if !deployed {
		pool, ok := d.catalog.PoolConfig(cfg.Pool)
		if !ok {
			return poolerrors.Newf(poolerrors.ErrorTypeConfig, "resource %s references unknown pool", cfg.Name).
				WithPool(cfg.Pool)
		}
		if err := d.lifecycle.Create(ctx, pool.Descriptor, nil); err != nil {
			return err
		}
	}

	d.mu.Lock()
	d.deployed[cfg.Name] = cfg.Pool
	d.mu.Unlock()
	d.logger.Info("resource deployed", zap.String("resource", cfg.Name), zap.Stringer("pool", cfg.Pool))
	return nil
}

// Undeploy undeploys a pool or a resource. Undeploying the last deployed
// resource of a pool deletes the pool.
func (d *Deployer) Undeploy(ctx context.Context, cfg core.ResourceConfig) error {
	if cfg.IsPool() {
		return d.lifecycle.Delete(ctx, cfg.Pool, true)
	}

	d.mu.Lock()
	pool, ok := d.deployed[cfg.Name]
	if ok {
		delete(d.deployed, cfg.Name)
	}
	referenced := d.referencedLocked(pool)
	d.mu.Unlock()

	if !ok {
		return nil
	}
	d.logger.Info("resource undeployed", zap.String("resource", cfg.Name), zap.Stringer("pool", pool))
	if referenced {
		return nil
	}
	return d.lifecycle.Delete(ctx, pool, true)
}

func (d *Deployer) referencedLocked(id core.PoolIdentity) bool {
	for _, pool := range d.deployed {
		if pool == id {
			return true
		}
	}
	return false
}

// DeployAll deploys every configured pool and then every enabled resource.
func (d *Deployer) DeployAll(ctx context.Context) error {
	for _, id := range d.catalog.Pools() {
		cfg, _ := d.catalog.PoolConfig(id)
		if err := d.Deploy(ctx, cfg); err != nil {
			return err
		}
	}
	for _, r := range d.catalog.Resources() {
		if err := d.Deploy(ctx, core.ResourceConfig{Name: r.Name, Pool: r.PoolIdentity(), Enabled: r.IsEnabled()}); err != nil {
			return err
		}
	}
	return nil
}

// UndeployAll deletes every configured pool, dropping deployed resources.
// It keeps going after failures and returns the first one.
func (d *Deployer) UndeployAll(ctx context.Context) error {
	d.mu.Lock()
	d.deployed = make(map[string]core.PoolIdentity)
	d.mu.Unlock()

	var first error
	for _, id := range d.catalog.Pools() {
		if err := d.lifecycle.Delete(ctx, id, true); err != nil {
			d.logger.Warn("failed to undeploy pool", zap.Stringer("pool", id), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// DeployedResources returns the names of deployed resources.
func (d *Deployer) DeployedResources() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.deployed))
	for name := range d.deployed {
		names = append(names, name)
	}
	return names
}
