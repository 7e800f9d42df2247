package registry

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
)

func newMetadata(id core.PoolIdentity) *core.PoolRuntimeMetadata {
	return &core.PoolRuntimeMetadata{
		Identity: id,
		Handle:   core.NewFactoryHandle(nil, "test"),
	}
}

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		r := NewRegistry()
		id := core.NewPoolIdentity("orders")

		assert.False(t, r.IsResolved(id))
		_, ok := r.Get(id)
		assert.False(t, ok)

		md := newMetadata(id)
		require.NoError(t, r.Register(id, md))
		assert.True(t, r.IsResolved(id))

		got, ok := r.Get(id)
		require.True(t, ok)
		assert.Same(t, md, got)
	})

	t.Run("second registration conflicts", func(t *testing.T) {
		r := NewRegistry()
		id := core.NewPoolIdentity("orders")
		first := newMetadata(id)
		require.NoError(t, r.Register(id, first))

		err := r.Register(id, newMetadata(id))
		require.Error(t, err)
		assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeRegistrationConflict))

		got, _ := r.Get(id)
		assert.Same(t, first, got)
	})

	t.Run("metadata without handle is rejected", func(t *testing.T) {
		r := NewRegistry()
		err := r.Register(core.NewPoolIdentity("x"), &core.PoolRuntimeMetadata{})
		assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeInvalidRequest))
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		r := NewRegistry()
		id := core.NewPoolIdentity("orders")
		require.NoError(t, r.Register(id, newMetadata(id)))

		assert.True(t, r.Remove(id))
		assert.False(t, r.Remove(id))
		assert.False(t, r.IsResolved(id))
	})

	t.Run("identities are structural", func(t *testing.T) {
		r := NewRegistry()
		server := core.NewPoolIdentity("p")
		scoped := core.PoolIdentity{Name: "p", Application: "shop"}
		require.NoError(t, r.Register(server, newMetadata(server)))
		require.NoError(t, r.Register(scoped, newMetadata(scoped)))

		assert.Equal(t, 2, r.Len())
		assert.Equal(t, []core.PoolIdentity{server, scoped}, r.List())
		assert.True(t, r.IsResolved(core.PoolIdentity{Name: "p", Application: "shop"}))
	})

	t.Run("update swaps snapshot and keeps handle", func(t *testing.T) {
		r := NewRegistry()
		id := core.NewPoolIdentity("orders")
		md := newMetadata(id)
		md.LazyEnlistable = true
		require.NoError(t, r.Register(id, md))

		ok := r.Update(id, func(old *core.PoolRuntimeMetadata) *core.PoolRuntimeMetadata {
			return old.WithFlags(true, false)
		})
		require.True(t, ok)

		got, _ := r.Get(id)
		assert.NotSame(t, md, got)
		assert.Same(t, md.Handle, got.Handle)
		assert.True(t, got.NonComponent)
		assert.False(t, got.LazyEnlistable)
		assert.True(t, md.LazyEnlistable, "old snapshot must stay untouched")

		assert.False(t, r.Update(core.NewPoolIdentity("missing"), func(m *core.PoolRuntimeMetadata) *core.PoolRuntimeMetadata { return m }))
	})
}

func TestRegistryLock(t *testing.T) {
	t.Run("serializes one identity", func(t *testing.T) {
		r := NewRegistry()
		id := core.NewPoolIdentity("orders")

		var inside, maxInside int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := r.Lock(id)
				defer unlock()

				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
		assert.Equal(t, 0, r.locks.size())
	})

	t.Run("different identities do not contend", func(t *testing.T) {
		r := NewRegistry()
		unlockA := r.Lock(core.NewPoolIdentity("a"))
		defer unlockA()

		done := make(chan struct{})
		go func() {
			unlock := r.Lock(core.NewPoolIdentity("b"))
			unlock()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("lock on b blocked behind lock on a")
		}
	})

	t.Run("reads do not block behind the identity lock", func(t *testing.T) {
		r := NewRegistry()
		id := core.NewPoolIdentity("orders")
		require.NoError(t, r.Register(id, newMetadata(id)))

		unlock := r.Lock(id)
		defer unlock()

		done := make(chan bool)
		go func() {
			_, ok := r.Get(id)
			done <- ok
		}()

		select {
		case ok := <-done:
			assert.True(t, ok)
		case <-time.After(time.Second):
			t.Fatal("Get blocked behind the identity lock")
		}
	})

	t.Run("unlock is safe to call twice", func(t *testing.T) {
		r := NewRegistry()
		unlock := r.Lock(core.NewPoolIdentity("a"))
		unlock()
		unlock()
		assert.Equal(t, 0, r.locks.size())
	})
}
