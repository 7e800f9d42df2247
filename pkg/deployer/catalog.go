// Package deployer deploys configured pools and resources through the pool
// lifecycle and answers catalog questions about them.
package deployer

import (
	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

// Catalog indexes a resources file. It is immutable once built.
type Catalog struct {
	pools     map[core.PoolIdentity]*core.PoolDescriptor
	order     []core.PoolIdentity
	resources []config.ResourceConfig
}

// NewCatalog builds a catalog from validated resources.
func NewCatalog(res *config.Resources) (*Catalog, error) {
	c := &Catalog{pools: make(map[core.PoolIdentity]*core.PoolDescriptor, len(res.Pools))}
	for i := range res.Pools {
		desc, err := res.Pools[i].Descriptor()
		if err != nil {
			return nil, err
		}
		c.pools[desc.Identity] = desc
		c.order = append(c.order, desc.Identity)
	}
	c.resources = append(c.resources, res.Resources...)
	return c, nil
}

// Pools returns the configured pool identities in file order.
func (c *Catalog) Pools() []core.PoolIdentity {
	return append([]core.PoolIdentity(nil), c.order...)
}

// Resources returns the configured resources in file order.
func (c *Catalog) Resources() []config.ResourceConfig {
	return append([]config.ResourceConfig(nil), c.resources...)
}

// IsPoolReferenced reports whether an enabled resource references the pool.
func (c *Catalog) IsPoolReferenced(id core.PoolIdentity) bool {
	for i := range c.resources {
		r := &c.resources[i]
		if r.IsEnabled() && r.PoolIdentity() == id {
			return true
		}
	}
	return false
}

// PoolConfig returns the deployable configuration of a pool.
func (c *Catalog) PoolConfig(id core.PoolIdentity) (core.ResourceConfig, bool) {
	desc, ok := c.pools[id]
	if !ok {
		return core.ResourceConfig{}, false
	}
	return core.ResourceConfig{
		Name:       id.Name,
		Pool:       id,
		Descriptor: desc.Clone(),
		Enabled:    true,
	}, true
}

// ResourceConfig returns the deployable configuration of a named resource.
// Resources scoped to the application and module win over global ones.
func (c *Catalog) ResourceConfig(name, application, module string) (core.ResourceConfig, bool) {
	r, ok := c.find(name, application, module)
	if !ok {
		return core.ResourceConfig{}, false
	}
	return core.ResourceConfig{Name: r.Name, Pool: r.PoolIdentity(), Enabled: r.IsEnabled()}, true
}

// PoolForResource returns the pool an enabled resource references.
func (c *Catalog) PoolForResource(name, application, module string) (core.PoolIdentity, bool) {
	r, ok := c.find(name, application, module)
	if !ok || !r.IsEnabled() {
		return core.PoolIdentity{}, false
	}
	return r.PoolIdentity(), true
}

func (c *Catalog) find(name, application, module string) (*config.ResourceConfig, bool) {
	scopes := [][2]string{{application, module}, {application, ""}, {"", ""}}
	for _, scope := range scopes {
		for i := range c.resources {
			r := &c.resources[i]
			if r.Name == name && r.Application == scope[0] && r.Module == scope[1] {
				return r, true
			}
		}
	}
	return nil, false
}
