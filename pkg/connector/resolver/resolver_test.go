package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/connector/registry"
	"github.com/ajitpratap0/connpool/pkg/naming"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
	"github.com/ajitpratap0/connpool/pkg/testutil"
)

type fixture struct {
	registry *registry.Registry
	naming   *naming.Memory
	adapter  *testutil.Adapter
	pools    *testutil.PoolManager
	resolver *Resolver
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		registry: registry.NewRegistry(),
		naming:   naming.NewMemory(),
		adapter:  testutil.NewAdapter("test-ra"),
		pools:    testutil.NewPoolManager(),
	}
	opts = append([]Option{WithLogger(testutil.TestLogger(t))}, opts...)
	f.resolver = New(f.registry, f.naming, testutil.NewAdapterResolver(f.adapter), f.pools, opts...)
	return f
}

func (f *fixture) publish(t *testing.T, desc *core.PoolDescriptor) {
	t.Helper()
	require.NoError(t, f.naming.Publish(context.Background(), desc.Identity, desc.Identity.ReservedName(), desc, true))
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("creates once and serves from cache", func(t *testing.T) {
		f := newFixture(t)
		desc := testutil.Descriptor("orders", "test-ra", core.Property{Name: "URL", Value: "db://a"})
		f.publish(t, desc)

		first, err := f.resolver.Resolve(ctx, desc.Identity, nil)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			again, err := f.resolver.Resolve(ctx, desc.Identity, nil)
			require.NoError(t, err)
			assert.Same(t, first, again)
		}
		assert.Len(t, f.adapter.Factories(), 1)

		class, ok := f.pools.Pool(desc.Identity)
		require.True(t, ok)
		assert.Equal(t, core.ClassificationStandard, class)
	})

	t.Run("concurrent first resolutions create one factory", func(t *testing.T) {
		f := newFixture(t)
		desc := testutil.Descriptor("orders", "test-ra")
		f.publish(t, desc)

		var wg sync.WaitGroup
		handles := make([]*core.FactoryHandle, 16)
		for i := range handles {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				h, err := f.resolver.Resolve(ctx, desc.Identity, nil)
				assert.NoError(t, err)
				handles[i] = h
			}(i)
		}
		wg.Wait()

		for _, h := range handles {
			assert.Same(t, handles[0], h)
		}
		assert.Len(t, f.adapter.Factories(), 1)
	})

	t.Run("not bound", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.resolver.Resolve(ctx, core.NewPoolIdentity("missing"), nil)
		require.Error(t, err)
		assert.True(t, poolerrors.IsNotBound(err))
		pool, ok := poolerrors.PoolOf(err)
		require.True(t, ok)
		assert.Equal(t, "missing", pool.Name)
	})

	t.Run("failures leave the registry untouched", func(t *testing.T) {
		tests := []struct {
			name    string
			setup   func(f *fixture, desc *core.PoolDescriptor)
			errType poolerrors.ErrorType
		}{
			{
				name:    "unknown adapter",
				setup:   func(_ *fixture, desc *core.PoolDescriptor) { desc.AdapterModule = "nope" },
				errType: poolerrors.ErrorTypeAdapterNotInitialized,
			},
			{
				name:    "adapter rejects configuration",
				setup:   func(f *fixture, _ *core.PoolDescriptor) { f.adapter.CreateErr = errors.New("bad url") },
				errType: poolerrors.ErrorTypeFactoryCreationFailed,
			},
			{
				name:    "adapter returns no factory",
				setup:   func(f *fixture, _ *core.PoolDescriptor) { f.adapter.NilFactory = true },
				errType: poolerrors.ErrorTypeFactoryCreationFailed,
			},
			{
				name: "bean validation",
				setup: func(f *fixture, _ *core.PoolDescriptor) {
					f.adapter.SchemaDef = &core.Schema{Name: "test-ra", Fields: []core.Field{
						{Name: "URL", Type: core.FieldTypeString, Required: true},
					}}
				},
				errType: poolerrors.ErrorTypeFactoryCreationFailed,
			},
			{
				name: "transaction support above adapter",
				setup: func(f *fixture, _ *core.PoolDescriptor) {
					f.adapter.Max = core.LocalTransaction
					f.adapter.Configure = func(_ *core.PoolDescriptor, fac *testutil.Factory) {
						fac.WithTransactionSupport(core.XATransaction)
					}
				},
				errType: poolerrors.ErrorTypeTransactionSupportMismatch,
			},
			{
				name:    "physical pool allocation",
				setup:   func(f *fixture, _ *core.PoolDescriptor) { f.pools.CreateErr = errors.New("no memory") },
				errType: poolerrors.ErrorTypePool,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)
				desc := testutil.Descriptor("orders", "test-ra")
				tt.setup(f, desc)
				f.publish(t, desc)

				_, err := f.resolver.Resolve(ctx, desc.Identity, nil)
				require.Error(t, err)
				assert.True(t, poolerrors.IsType(err, tt.errType), "got %v", err)
				assert.False(t, f.registry.IsResolved(desc.Identity))
			})
		}
	})
}

func TestResolveMetadata(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		mutate     func(d *core.PoolDescriptor)
		disableSw  bool
		wantClass  core.Classification
		wantEnlist bool
		wantAssoc  bool
	}{
		{
			name:       "lazy flags kept for component pools",
			mutate:     func(d *core.PoolDescriptor) { d.LazyEnlist, d.LazyAssociate = true, true },
			wantClass:  core.ClassificationStandard,
			wantEnlist: true,
			wantAssoc:  true,
		},
		{
			name: "non-component forces lazy flags off",
			mutate: func(d *core.PoolDescriptor) {
				d.LazyEnlist, d.LazyAssociate, d.NonComponent = true, true, true
			},
			wantClass: core.ClassificationStandard,
		},
		{
			name: "non-transactional forces lazy flags off",
			mutate: func(d *core.PoolDescriptor) {
				d.LazyEnlist, d.LazyAssociate, d.NonTransactional = true, true, true
			},
			wantClass: core.ClassificationStandard,
		},
		{
			name:       "compatibility switch disables lazy association",
			mutate:     func(d *core.PoolDescriptor) { d.LazyEnlist, d.LazyAssociate = true, true },
			disableSw:  true,
			wantClass:  core.ClassificationStandard,
			wantEnlist: true,
		},
		{
			name:      "pooling disabled wins",
			mutate:    func(d *core.PoolDescriptor) { d.PoolingEnabled, d.AssociateWithThread, d.Partitioned = false, true, true },
			wantClass: core.ClassificationPoolingDisabled,
		},
		{
			name:      "thread association before partitioning",
			mutate:    func(d *core.PoolDescriptor) { d.AssociateWithThread, d.Partitioned = true, true },
			wantClass: core.ClassificationAssociateWithThread,
		},
		{
			name:      "partitioned",
			mutate:    func(d *core.PoolDescriptor) { d.Partitioned = true },
			wantClass: core.ClassificationPartitioned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := config.DefaultSettings()
			settings.Set("legacy_persistence_compat", tt.disableSw)
			f := newFixture(t, WithLazyAssociationSwitch(settings.LazyAssociationDisabled))

			desc := testutil.Descriptor("orders", "test-ra")
			tt.mutate(desc)
			f.publish(t, desc)

			_, err := f.resolver.Resolve(ctx, desc.Identity, nil)
			require.NoError(t, err)

			md, ok := f.resolver.Metadata(desc.Identity)
			require.True(t, ok)
			assert.Equal(t, tt.wantClass, md.Classification)
			assert.Equal(t, tt.wantEnlist, md.LazyEnlistable)
			assert.Equal(t, tt.wantAssoc, md.LazyAssociable)
			assert.Equal(t, desc.NonComponent, md.NonComponent)
			assert.Equal(t, desc.NonTransactional, md.NonTransactional)
		})
	}
}

func TestNegotiateTransactionSupport(t *testing.T) {
	adapter := testutil.NewAdapter("ra")
	adapter.Max = core.LocalTransaction
	desc := testutil.Descriptor("p", "ra")
	desc.TransactionSupport = core.XATransaction

	level, err := NegotiateTransactionSupport(adapter, testutil.NewFactory(nil), desc)
	require.NoError(t, err)
	assert.Equal(t, core.XATransaction, level, "configured level is used unchanged without a declaration")

	level, err = NegotiateTransactionSupport(adapter, testutil.NewFactory(nil).WithTransactionSupport(core.NoTransaction), desc)
	require.NoError(t, err)
	assert.Equal(t, core.NoTransaction, level)

	_, err = NegotiateTransactionSupport(adapter, testutil.NewFactory(nil).WithTransactionSupport(core.XATransaction), desc)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeTransactionSupportMismatch))

	_, err = NegotiateTransactionSupport(adapter, testutil.NewFactory(nil).WithTransactionSupport(core.TransactionSupportLevel(7)), desc)
	assert.Error(t, err)
}

func TestDefaultPrincipal(t *testing.T) {
	aliases := config.NewAliasResolver(map[string]string{"db": "from-alias"})
	f := newFixture(t, WithPasswordResolver(aliases))
	id := core.NewPoolIdentity("p")

	tests := []struct {
		name    string
		props   core.Properties
		factory map[string]string
		want    core.Principal
	}{
		{
			name:  "username and password",
			props: core.Properties{{Name: "UserName", Value: "app"}, {Name: "password", Value: "pw"}},
			want:  core.Principal{Username: "app", Password: "pw"},
		},
		{
			name:  "username wins over user",
			props: core.Properties{{Name: "User", Value: "other"}, {Name: "USERNAME", Value: "app"}},
			want:  core.Principal{Username: "app"},
		},
		{
			name:  "user fallback",
			props: core.Properties{{Name: "user", Value: "app"}, {Name: "Password", Value: "pw"}},
			want:  core.Principal{Username: "app", Password: "pw"},
		},
		{
			name:  "password alias",
			props: core.Properties{{Name: "USER", Value: "app"}, {Name: "PASSWORD", Value: "${ALIAS=db}"}},
			want:  core.Principal{Username: "app", Password: "from-alias"},
		},
		{
			name:  "unresolvable alias is kept",
			props: core.Properties{{Name: "USER", Value: "app"}, {Name: "PASSWORD", Value: "${ALIAS=nope}"}},
			want:  core.Principal{Username: "app", Password: "${ALIAS=nope}"},
		},
		{
			name:    "empty user falls back to factory",
			props:   core.Properties{{Name: "USERNAME", Value: ""}},
			factory: map[string]string{"User": "svc", "Password": "svc-pw"},
			want:    core.Principal{Username: "svc", Password: "svc-pw"},
		},
		{
			name:    "absent user falls back to factory",
			factory: map[string]string{"User": "svc"},
			want:    core.Principal{Username: "svc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.resolver.DefaultPrincipal(id, tt.props, testutil.NewFactory(tt.factory))
			assert.Equal(t, tt.want, got)
		})
	}
}
