package deployer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/connector/lifecycle"
	"github.com/ajitpratap0/connpool/pkg/connector/registry"
	"github.com/ajitpratap0/connpool/pkg/connector/resolver"
	"github.com/ajitpratap0/connpool/pkg/naming"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
	"github.com/ajitpratap0/connpool/pkg/testutil"
)

func resources() *config.Resources {
	disabled := false
	return &config.Resources{
		Pools: []config.PoolConfig{
			*config.NewPoolConfig("orders", "test-ra"),
			*config.NewPoolConfig("billing", "test-ra"),
			*config.NewPoolConfig("idle", "test-ra"),
		},
		Resources: []config.ResourceConfig{
			{Name: "jdbc/orders", Pool: "orders"},
			{Name: "jdbc/orders-ro", Pool: "orders"},
			{Name: "jdbc/billing", Pool: "billing", Enabled: &disabled},
		},
	}
}

func newDeployer(t *testing.T, res *config.Resources) (*Deployer, *lifecycle.Manager, *registry.Registry) {
	t.Helper()
	log := testutil.TestLogger(t)
	catalog, err := NewCatalog(res)
	require.NoError(t, err)

	reg := registry.NewRegistry()
	names := naming.NewMemory()
	pools := testutil.NewPoolManager()
	r := resolver.New(reg, names, testutil.NewAdapterResolver(testutil.NewAdapter("test-ra")), pools, resolver.WithLogger(log))
	lc := lifecycle.NewManager(reg, r, names, pools, lifecycle.WithLogger(log))
	return New(catalog, lc, WithLogger(log)), lc, reg
}

func TestCatalog(t *testing.T) {
	res := resources()
	res.Resources = append(res.Resources, config.ResourceConfig{
		Name: "jdbc/orders", Pool: "orders", Application: "shop",
	})
	shopOrders := config.NewPoolConfig("orders", "test-ra")
	shopOrders.Application = "shop"
	res.Pools = append(res.Pools, *shopOrders)

	c, err := NewCatalog(res)
	require.NoError(t, err)

	orders := core.NewPoolIdentity("orders")
	assert.True(t, c.IsPoolReferenced(orders))
	assert.False(t, c.IsPoolReferenced(core.NewPoolIdentity("billing")), "disabled resources do not count")
	assert.False(t, c.IsPoolReferenced(core.NewPoolIdentity("idle")))

	cfg, ok := c.PoolConfig(orders)
	require.True(t, ok)
	assert.True(t, cfg.IsPool())
	assert.Equal(t, 32, cfg.Descriptor.MaxPoolSize)

	_, ok = c.PoolConfig(core.NewPoolIdentity("missing"))
	assert.False(t, ok)

	id, ok := c.PoolForResource("jdbc/orders", "", "")
	require.True(t, ok)
	assert.Equal(t, orders, id)

	id, ok = c.PoolForResource("jdbc/orders", "shop", "web")
	require.True(t, ok)
	assert.Equal(t, "shop", id.Application)

	id, ok = c.PoolForResource("jdbc/orders-ro", "shop", "web")
	require.True(t, ok)
	assert.Equal(t, orders, id, "global resources are visible to applications")

	_, ok = c.PoolForResource("jdbc/billing", "", "")
	assert.False(t, ok)
}

func TestNewCatalogRejectsInvalidPool(t *testing.T) {
	res := resources()
	res.Pools[0].MaxPoolSize = 0
	_, err := NewCatalog(res)
	assert.Error(t, err)
}

func TestDeployAll(t *testing.T) {
	ctx := context.Background()
	d, lc, reg := newDeployer(t, resources())

	require.NoError(t, d.DeployAll(ctx))
	assert.Equal(t, 3, reg.Len())
	assert.ElementsMatch(t, []string{"jdbc/orders", "jdbc/orders-ro"}, d.DeployedResources())

	require.NoError(t, d.UndeployAll(ctx))
	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, d.DeployedResources())

	deployed, err := lc.IsDeployed(ctx, core.NewPoolIdentity("orders"))
	require.NoError(t, err)
	assert.False(t, deployed)
}

func TestResourceUndeployDeletesUnreferencedPool(t *testing.T) {
	ctx := context.Background()
	d, lc, _ := newDeployer(t, resources())
	orders := core.NewPoolIdentity("orders")

	primary := core.ResourceConfig{Name: "jdbc/orders", Pool: orders, Enabled: true}
	replica := core.ResourceConfig{Name: "jdbc/orders-ro", Pool: orders, Enabled: true}
	require.NoError(t, d.Deploy(ctx, primary))
	require.NoError(t, d.Deploy(ctx, replica))

	require.NoError(t, d.Undeploy(ctx, primary))
	deployed, err := lc.IsDeployed(ctx, orders)
	require.NoError(t, err)
	assert.True(t, deployed, "still referenced by the replica resource")

	require.NoError(t, d.Undeploy(ctx, replica))
	deployed, err = lc.IsDeployed(ctx, orders)
	require.NoError(t, err)
	assert.False(t, deployed)

	assert.NoError(t, d.Undeploy(ctx, replica), "undeploying twice is a no-op")
}

func TestDeployForcedPool(t *testing.T) {
	ctx := context.Background()
	d, lc, reg := newDeployer(t, resources())
	idle := core.NewPoolIdentity("idle")

	cfg, ok := d.Catalog().PoolConfig(idle)
	require.True(t, ok)
	require.NoError(t, d.Deploy(ctx, cfg))
	assert.True(t, reg.IsResolved(idle))

	require.NoError(t, d.Undeploy(ctx, cfg))
	assert.False(t, reg.IsResolved(idle))
	deployed, err := lc.IsDeployed(ctx, idle)
	require.NoError(t, err)
	assert.False(t, deployed)
}

func TestDeployResourceErrors(t *testing.T) {
	ctx := context.Background()
	d, _, reg := newDeployer(t, resources())

	err := d.Deploy(ctx, core.ResourceConfig{Name: "jdbc/ghost", Pool: core.NewPoolIdentity("ghost"), Enabled: true})
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))

	require.NoError(t, d.Deploy(ctx, core.ResourceConfig{Name: "jdbc/billing", Pool: core.NewPoolIdentity("billing")}))
	assert.Equal(t, 0, reg.Len(), "disabled resources deploy nothing")
}
