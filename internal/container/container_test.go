package container

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/testutil"
)

func testResources() *config.Resources {
	orders := config.NewPoolConfig("orders", "test-ra")
	orders.SteadyPoolSize = 2
	orders.MaxPoolSize = 4
	return &config.Resources{
		Pools:     []config.PoolConfig{*orders},
		Resources: []config.ResourceConfig{{Name: "jdbc/orders", Pool: "orders"}},
	}
}

func newContainer(t *testing.T, adapter *testutil.Adapter, settings *config.Settings) *Container {
	t.Helper()
	log := testutil.TestLogger(t)
	if settings == nil {
		settings = config.DefaultSettings()
		settings.HealthCheck.Interval = 0
	}
	c, err := New(settings, testResources(),
		WithAdapters(testutil.NewAdapterResolver(adapter)),
		WithLogger(log))
	require.NoError(t, err)
	return c
}

func TestStartAndShutdown(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewAdapter("test-ra")
	c := newContainer(t, adapter, nil)

	require.NoError(t, c.Start(ctx))
	id := core.NewPoolIdentity("orders")
	assert.True(t, c.Registry.IsResolved(id))

	stats, ok := c.Pools.Stats(id)
	require.True(t, ok)
	assert.Equal(t, 2, stats.Total, "prefilled to the steady size")
	assert.Equal(t, 4, stats.MaxSize)

	require.NoError(t, c.Ping(ctx, id))

	conn, err := c.Unpooled.GetConnection(ctx, "jdbc/orders", "", "", nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, conn)

	require.NoError(t, c.Shutdown(ctx))
	assert.False(t, c.Registry.IsResolved(id))
	deployed, err := c.Lifecycle.IsDeployed(ctx, id)
	require.NoError(t, err)
	assert.False(t, deployed)
}

func TestPingFailureDestroysConnection(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewAdapter("test-ra")
	adapter.Configure = func(_ *core.PoolDescriptor, f *testutil.Factory) {
		f.PingErr = errors.New("server gone")
	}
	c := newContainer(t, adapter, nil)
	require.NoError(t, c.Start(ctx))
	defer func() { _ = c.Shutdown(ctx) }()

	id := core.NewPoolIdentity("orders")
	assert.Error(t, c.Ping(ctx, id))
	testutil.AssertEventually(t, func() bool {
		stats, _ := c.Pools.Stats(id)
		return stats.Total == 1
	}, time.Second, "failed connection was not destroyed")

	h := c.Health.Check(ctx, id)
	assert.Equal(t, StatusDegraded, h.Status)
}

func TestPingUnknownPool(t *testing.T) {
	c := newContainer(t, testutil.NewAdapter("test-ra"), nil)
	assert.Error(t, c.Ping(context.Background(), core.NewPoolIdentity("missing")))
}

// PebbleSuite runs the container against a persistent naming store.
type PebbleSuite struct {
	testutil.IntegrationTestSuite
	path string
}

func TestPebbleSuite(t *testing.T) {
	suite.Run(t, new(PebbleSuite))
}

func (s *PebbleSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "naming")
}

func (s *PebbleSuite) newContainer() *Container {
	settings := config.DefaultSettings()
	settings.HealthCheck.Interval = 0
	settings.Naming.Store = "pebble"
	settings.Naming.Path = s.path
	return newContainer(s.T(), testutil.NewAdapter("test-ra"), settings)
}

func (s *PebbleSuite) TestDescriptorsArePersisted() {
	ctx := s.Context()
	id := core.NewPoolIdentity("orders")

	c := s.newContainer()
	s.Require().NoError(c.Start(ctx))
	c.Pools.Close()
	s.Require().NoError(c.Close())

	// reopen without deploying: the descriptor is still published
	reopened := s.newContainer()
	desc, err := reopened.Lifecycle.Descriptor(ctx, id)
	s.Require().NoError(err)
	s.Equal("test-ra", desc.AdapterModule)
	s.Equal(4, desc.MaxPoolSize)

	s.Require().NoError(reopened.Shutdown(ctx))
	s.Require().NoError(reopened.Close())
}

func TestNewRejectsInvalidResources(t *testing.T) {
	res := testResources()
	res.Pools[0].SteadyPoolSize = 10
	_, err := New(config.DefaultSettings(), res, WithAdapters(testutil.NewAdapterResolver(testutil.NewAdapter("test-ra"))))
	assert.Error(t, err)
}
