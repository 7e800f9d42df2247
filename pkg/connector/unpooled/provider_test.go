package unpooled

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/connector/lifecycle"
	"github.com/ajitpratap0/connpool/pkg/connector/registry"
	"github.com/ajitpratap0/connpool/pkg/connector/resolver"
	"github.com/ajitpratap0/connpool/pkg/naming"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
	"github.com/ajitpratap0/connpool/pkg/testutil"
)

type fixture struct {
	registry  *registry.Registry
	naming    *naming.Memory
	adapter   *testutil.Adapter
	lifecycle *lifecycle.Manager
	catalog   *testutil.Catalog
	deployer  *testutil.Deployer
	provider  *Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := testutil.TestLogger(t)
	f := &fixture{
		registry: registry.NewRegistry(),
		naming:   naming.NewMemory(),
		adapter:  testutil.NewAdapter("test-ra"),
		catalog:  testutil.NewCatalog(),
	}
	pools := testutil.NewPoolManager()
	res := resolver.New(f.registry, f.naming, testutil.NewAdapterResolver(f.adapter), pools, resolver.WithLogger(log))
	f.lifecycle = lifecycle.NewManager(f.registry, res, f.naming, pools, lifecycle.WithLogger(log))
	f.deployer = &testutil.Deployer{
		DeployFn: func(ctx context.Context, cfg core.ResourceConfig) error {
			return f.lifecycle.Create(ctx, cfg.Descriptor, nil)
		},
		UndeployFn: func(ctx context.Context, cfg core.ResourceConfig) error {
			return f.lifecycle.Delete(ctx, cfg.Pool, true)
		},
	}
	f.provider = NewProvider(res, f.lifecycle, f.naming, f.catalog, f.deployer, WithLogger(log))
	return f
}

func TestGet(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to the factory user", func(t *testing.T) {
		f := newFixture(t)
		f.adapter.Configure = func(_ *core.PoolDescriptor, fac *testutil.Factory) {
			require.NoError(t, fac.SetProperty("User", "svc"))
			require.NoError(t, fac.SetProperty("Password", "svc-secret"))
		}
		desc := testutil.Descriptor("orders", "test-ra",
			core.Property{Name: "USERNAME", Value: ""},
			core.Property{Name: "URL", Value: "db://a"})
		f.catalog.AddResource("jdbc/orders", desc.Identity)
		require.NoError(t, f.lifecycle.Create(ctx, desc, nil))

		conn, err := f.provider.Get(ctx, desc.Identity, nil, true)
		require.NoError(t, err)

		h, ok := conn.(*testutil.Handle)
		require.True(t, ok)
		assert.Equal(t, "svc", h.Subject.Principal.Username)
		assert.Equal(t, "svc-secret", h.Subject.Principal.Password)

		cred, ok := h.Subject.CredentialFor(f.adapter.Factories()[0])
		require.True(t, ok)
		assert.Equal(t, "svc", cred.Username)
	})

	t.Run("uses the supplied principal", func(t *testing.T) {
		f := newFixture(t)
		desc := testutil.Descriptor("orders", "test-ra", core.Property{Name: "USER", Value: "app"})
		f.catalog.AddResource("jdbc/orders", desc.Identity)
		require.NoError(t, f.lifecycle.Create(ctx, desc, nil))

		conn, err := f.provider.Get(ctx, desc.Identity, &core.Principal{Username: "admin", Password: "pw"}, false)
		require.NoError(t, err)

		mc, ok := conn.(*testutil.ManagedConnection)
		require.True(t, ok)
		assert.Equal(t, "admin", mc.Subject.Principal.Username)
		assert.Len(t, mc.Listeners(), 1)
	})

	t.Run("releases a stale factory of an unreferenced pool", func(t *testing.T) {
		f := newFixture(t)
		desc := testutil.Descriptor("orders", "test-ra")
		require.NoError(t, f.lifecycle.Create(ctx, desc, nil))
		before, ok := f.registry.Get(desc.Identity)
		require.True(t, ok)

		_, err := f.provider.Get(ctx, desc.Identity, nil, true)
		require.NoError(t, err)

		after, ok := f.registry.Get(desc.Identity)
		require.True(t, ok)
		assert.NotSame(t, before.Handle, after.Handle)
		assert.Len(t, f.adapter.Factories(), 2)
	})

	t.Run("keeps the factory of a referenced pool", func(t *testing.T) {
		f := newFixture(t)
		desc := testutil.Descriptor("orders", "test-ra")
		f.catalog.AddResource("jdbc/orders", desc.Identity)
		require.NoError(t, f.lifecycle.Create(ctx, desc, nil))

		_, err := f.provider.Get(ctx, desc.Identity, nil, true)
		require.NoError(t, err)
		assert.Len(t, f.adapter.Factories(), 1)
	})

	t.Run("deploys an undeployed pool for one call", func(t *testing.T) {
		f := newFixture(t)
		desc := testutil.Descriptor("orders", "test-ra", core.Property{Name: "USER", Value: "app"})
		f.catalog.AddPool(desc)

		conn, err := f.provider.Get(ctx, desc.Identity, nil, true)
		require.NoError(t, err)
		assert.Equal(t, "app", conn.(*testutil.Handle).Subject.Principal.Username)

		assert.Len(t, f.deployer.Deployed(), 1)
		assert.Len(t, f.deployer.Undeployed(), 1)
		assert.False(t, f.registry.IsResolved(desc.Identity))

		deployed, err := f.lifecycle.IsDeployed(ctx, desc.Identity)
		require.NoError(t, err)
		assert.False(t, deployed)
	})

	t.Run("undeploys when the retried resolution fails", func(t *testing.T) {
		f := newFixture(t)
		f.adapter.CreateErr = errors.New("unreachable")
		desc := testutil.Descriptor("orders", "test-ra")
		f.catalog.AddPool(desc)
		f.deployer.DeployFn = func(ctx context.Context, cfg core.ResourceConfig) error {
			return f.naming.Publish(ctx, cfg.Pool, cfg.Pool.ReservedName(), cfg.Descriptor, true)
		}

		_, err := f.provider.Get(ctx, desc.Identity, nil, true)
		require.Error(t, err)
		assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeTestConnectionFailed))
		assert.Len(t, f.deployer.Undeployed(), 1)
	})

	t.Run("unknown pool", func(t *testing.T) {
		f := newFixture(t)
		id := core.NewPoolIdentity("missing")

		_, err := f.provider.Get(ctx, id, nil, true)
		require.Error(t, err)
		assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeTestConnectionFailed))

		pool, ok := poolerrors.PoolOf(err)
		require.True(t, ok)
		assert.Equal(t, id, pool)
		assert.Empty(t, f.deployer.Deployed())
	})

	t.Run("connection creation failure", func(t *testing.T) {
		f := newFixture(t)
		f.adapter.Configure = func(_ *core.PoolDescriptor, fac *testutil.Factory) {
			fac.CreateErr = errors.New("connection refused")
		}
		desc := testutil.Descriptor("orders", "test-ra")
		f.catalog.AddResource("jdbc/orders", desc.Identity)
		require.NoError(t, f.lifecycle.Create(ctx, desc, nil))

		_, err := f.provider.Get(ctx, desc.Identity, nil, true)
		assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeTestConnectionFailed))
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestTestPool(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		f := newFixture(t)
		desc := testutil.Descriptor("orders", "test-ra")
		f.catalog.AddResource("jdbc/orders", desc.Identity)
		require.NoError(t, f.lifecycle.Create(ctx, desc, nil))

		require.NoError(t, f.provider.TestPool(ctx, desc.Identity))
		assert.Equal(t, 1, f.adapter.Factories()[0].Created())
	})

	t.Run("ping failure", func(t *testing.T) {
		f := newFixture(t)
		f.adapter.Configure = func(_ *core.PoolDescriptor, fac *testutil.Factory) {
			fac.PingErr = errors.New("server gone")
		}
		desc := testutil.Descriptor("orders", "test-ra")
		f.catalog.AddResource("jdbc/orders", desc.Identity)
		require.NoError(t, f.lifecycle.Create(ctx, desc, nil))

		err := f.provider.TestPool(ctx, desc.Identity)
		assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeTestConnectionFailed))
	})
}

func TestGetConnection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	desc := testutil.Descriptor("orders", "test-ra", core.Property{Name: "USER", Value: "app"})
	f.catalog.AddResource("jdbc/orders", desc.Identity)
	require.NoError(t, f.lifecycle.Create(ctx, desc, nil))

	conn, err := f.provider.GetConnection(ctx, "jdbc/orders", "", "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "app", conn.(*testutil.Handle).Subject.Principal.Username)

	user := "reporting"
	conn, err = f.provider.GetConnection(ctx, "jdbc/orders", "", "", &user, nil)
	require.NoError(t, err)
	principal := conn.(*testutil.Handle).Subject.Principal
	assert.Equal(t, core.Principal{Username: "reporting"}, principal)

	_, err = f.provider.GetConnection(ctx, "jdbc/unknown", "", "", nil, nil)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeTestConnectionFailed))
}
