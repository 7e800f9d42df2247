// Package physicalpool keeps the physical connections of resolved pools.
//
// Each pool is a jackc/puddle pool of managed connections created by the
// pool's connection factory with its default subject. Pools with pooling
// disabled hold no connections: every Acquire creates a connection that is
// destroyed on release.
//
// The manager learns about factories through the pool registry and about
// sizing, timeouts and retry policy through the published descriptor, so it
// must only be asked for a pool after the pool's factory was registered.
package physicalpool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/connector/registry"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/metrics"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
)

// ErrPoolNotFound is returned by Acquire for pools without a physical pool.
var ErrPoolNotFound = errors.New("physical pool not found")

// physical is one pooled managed connection.
type physical struct {
	mc     core.ManagedConnection
	uses   int64
	broken atomic.Bool
}

func (p *physical) ConnectionClosed(core.ConnectionEvent) {}

func (p *physical) ConnectionErrorOccurred(core.ConnectionEvent) {
	p.broken.Store(true)
}

// pool is the physical pool of one identity.
type pool struct {
	id       core.PoolIdentity
	class    core.Classification
	desc     atomic.Pointer[core.PoolDescriptor]
	res      *puddle.Pool[*physical] // nil when pooling is disabled
	matching atomic.Bool
	timeouts atomic.Int64
}

// Manager implements core.PoolManager on top of puddle pools.
type Manager struct {
	registry *registry.Registry
	naming   core.Naming
	pools    map[core.PoolIdentity]*pool
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewManager creates a manager reading factories from reg and descriptors
// from naming.
func NewManager(reg *registry.Registry, naming core.Naming) *Manager {
	return &Manager{
		registry: reg,
		naming:   naming,
		pools:    make(map[core.PoolIdentity]*pool),
		logger:   logger.Get().With(zap.String("component", "physical_pool")),
	}
}

// CreateEmpty creates the physical pool of id without opening connections.
// An existing pool of id is closed and replaced.
func (m *Manager) CreateEmpty(ctx context.Context, id core.PoolIdentity, class core.Classification, env core.Env) error {
	desc, err := m.naming.Lookup(ctx, id, id.ReservedName(), env)
	if err != nil {
		return err
	}
	if _, ok := m.registry.Get(id); !ok {
		return poolerrors.New(poolerrors.ErrorTypePool, "no factory registered").WithPool(id)
	}

	p := &pool{id: id, class: class}
	p.desc.Store(desc)
	if class != core.ClassificationPoolingDisabled {
		if p.res, err = m.newPuddle(p, desc.MaxPoolSize); err != nil {
			return poolerrors.Wrap(err, poolerrors.ErrorTypePool, "failed to create physical pool").WithPool(id)
		}
	}

	m.mu.Lock()
	old := m.pools[id]
	m.pools[id] = p
	m.mu.Unlock()

	if old != nil {
		m.close(old)
	}
	m.logger.Debug("physical pool created",
		zap.Stringer("pool", id),
		zap.String("classification", string(class)),
		zap.Int("max_pool_size", desc.MaxPoolSize))
	return nil
}

func (m *Manager) newPuddle(p *pool, maxSize int) (*puddle.Pool[*physical], error) {
	if maxSize <= 0 {
		return nil, errors.New("max pool size must be positive")
	}
	if maxSize > math.MaxInt32 {
		return nil, fmt.Errorf("max pool size %d exceeds %d", maxSize, math.MaxInt32)
	}
	return puddle.NewPool(&puddle.Config[*physical]{
		Constructor: func(ctx context.Context) (*physical, error) {
			return m.open(ctx, p)
		},
		Destructor: func(ph *physical) {
			if err := ph.mc.Destroy(context.Background()); err != nil {
				m.logger.Warn("failed to destroy connection", zap.Stringer("pool", p.id), zap.Error(err))
			}
		},
		MaxSize: int32(maxSize),
	})
}

// open creates a managed connection with the pool's default subject,
// retrying as configured by the descriptor.
func (m *Manager) open(ctx context.Context, p *pool) (*physical, error) {
	md, ok := m.registry.Get(p.id)
	if !ok {
		return nil, poolerrors.New(poolerrors.ErrorTypePool, "no factory registered").WithPool(p.id)
	}

	var mc core.ManagedConnection
	err := newRetryPolicy(p.desc.Load().CreationRetry).Execute(ctx, func() error {
		var err error
		mc, err = md.Handle.Factory.CreateManagedConnection(ctx, md.DefaultSubject)
		return err
	})
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypePool, "failed to create physical connection").WithPool(p.id)
	}

	ph := &physical{mc: mc}
	mc.AddConnectionEventListener(ph)
	return ph, nil
}

// Kill closes the physical pool of id. Killing an absent pool succeeds.
func (m *Manager) Kill(_ context.Context, id core.PoolIdentity) error {
	m.mu.Lock()
	p, ok := m.pools[id]
	delete(m.pools, id)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	m.close(p)
	metrics.PhysicalConnections.DeleteLabelValues(id.String(), "active")
	metrics.PhysicalConnections.DeleteLabelValues(id.String(), "idle")
	m.logger.Debug("physical pool killed", zap.Stringer("pool", id))
	return nil
}

// close destroys the connections of p. Checked out connections are
// destroyed once released, without blocking the caller.
func (m *Manager) close(p *pool) {
	if res := m.puddleOf(p); res != nil {
		closePuddle(res)
	}
}

func closePuddle(res *puddle.Pool[*physical]) {
	if res.Stat().AcquiredResources() == 0 {
		res.Close()
		return
	}
	go res.Close()
}

// ReconfigureAttributes applies the soft attributes of desc to the live
// pool. A changed max pool size replaces the puddle pool.
func (m *Manager) ReconfigureAttributes(_ context.Context, desc *core.PoolDescriptor) error {
	p, ok := m.get(desc.Identity)
	if !ok {
		return nil
	}

	prev := p.desc.Load()
	if m.puddleOf(p) == nil || prev.MaxPoolSize == desc.MaxPoolSize {
		p.desc.Store(desc.Clone())
		return nil
	}

	res, err := m.newPuddle(p, desc.MaxPoolSize)
	if err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypePool, "failed to resize physical pool").WithPool(desc.Identity)
	}
	p.desc.Store(desc.Clone())

	m.mu.Lock()
	old := p.res
	p.res = res
	m.mu.Unlock()

	closePuddle(old)
	m.logger.Info("physical pool resized",
		zap.Stringer("pool", desc.Identity),
		zap.Int("from", prev.MaxPoolSize),
		zap.Int("to", desc.MaxPoolSize))
	return nil
}

// Flush destroys every idle connection of id; checked out connections are
// destroyed when released. It reports false when id has no pool.
func (m *Manager) Flush(_ context.Context, id core.PoolIdentity) (bool, error) {
	p, ok := m.get(id)
	if !ok {
		return false, nil
	}
	if res := m.puddleOf(p); res != nil {
		res.Reset()
	}
	m.observe(p)
	m.logger.Info("physical pool flushed", zap.Stringer("pool", id))
	return true, nil
}

// SwitchOnMatching turns connection matching on for id.
func (m *Manager) SwitchOnMatching(_ context.Context, id core.PoolIdentity) (bool, error) {
	p, ok := m.get(id)
	if !ok {
		return false, nil
	}
	p.matching.Store(true)
	return true, nil
}

// Matching reports whether connection matching is on for id.
func (m *Manager) Matching(id core.PoolIdentity) bool {
	p, ok := m.get(id)
	if !ok {
		return false
	}
	return p.matching.Load() || p.desc.Load().MatchConnections
}

// Stats returns the statistics of the physical pool of id.
func (m *Manager) Stats(id core.PoolIdentity) (core.PoolStats, bool) {
	p, ok := m.get(id)
	if !ok {
		return core.PoolStats{}, false
	}
	return m.stats(p), true
}

func (m *Manager) stats(p *pool) core.PoolStats {
	res := m.puddleOf(p)
	if res == nil {
		return core.PoolStats{Timeouts: p.timeouts.Load()}
	}
	st := res.Stat()
	return core.PoolStats{
		Active:   int(st.AcquiredResources()),
		Idle:     int(st.IdleResources()),
		Total:    int(st.TotalResources()),
		MaxSize:  int(st.MaxResources()),
		Waits:    st.EmptyAcquireCount(),
		Timeouts: p.timeouts.Load(),
	}
}

func (m *Manager) observe(p *pool) {
	st := m.stats(p)
	metrics.PhysicalConnections.WithLabelValues(p.id.String(), "active").Set(float64(st.Active))
	metrics.PhysicalConnections.WithLabelValues(p.id.String(), "idle").Set(float64(st.Idle))
}

// Prefill opens connections until the pool holds its steady size.
func (m *Manager) Prefill(ctx context.Context, id core.PoolIdentity) error {
	p, ok := m.get(id)
	if !ok {
		return poolerrors.Wrap(ErrPoolNotFound, poolerrors.ErrorTypePool, "cannot prefill").WithPool(id)
	}
	res := m.puddleOf(p)
	if res == nil {
		return nil
	}

	steady := p.desc.Load().SteadyPoolSize
	for int(res.Stat().TotalResources()) < steady {
		if err := res.CreateResource(ctx); err != nil {
			return poolerrors.Wrap(err, poolerrors.ErrorTypePool, "failed to prefill pool").WithPool(id)
		}
	}
	m.observe(p)
	return nil
}

// Conn is a physical connection checked out of a pool.
type Conn struct {
	pool *pool
	ph   *physical
	res  *puddle.Resource[*physical]
	m    *Manager
	once sync.Once
}

// ManagedConnection returns the checked out managed connection.
func (c *Conn) ManagedConnection() core.ManagedConnection {
	return c.ph.mc
}

// Release returns the connection to its pool. Broken connections and
// connections that reached the maximum usage count are destroyed instead.
func (c *Conn) Release() {
	c.once.Do(func() {
		defer c.m.observe(c.pool)
		if c.res == nil {
			c.m.destroyUnpooled(c.pool, c.ph)
			return
		}

		maxUsage := int64(c.pool.desc.Load().MaxConnectionUsage)
		if c.ph.broken.Load() || (maxUsage > 0 && c.ph.uses >= maxUsage) {
			c.res.Destroy()
			return
		}
		c.res.Release()
	})
}

// Destroy closes the connection instead of returning it to the pool.
func (c *Conn) Destroy() {
	c.once.Do(func() {
		defer c.m.observe(c.pool)
		if c.res == nil {
			c.m.destroyUnpooled(c.pool, c.ph)
			return
		}
		c.res.Destroy()
	})
}

func (m *Manager) destroyUnpooled(p *pool, ph *physical) {
	if err := ph.mc.Destroy(context.Background()); err != nil {
		m.logger.Warn("failed to destroy connection", zap.Stringer("pool", p.id), zap.Error(err))
	}
}

// Acquire checks a connection out of the pool of id, waiting at most the
// pool's max wait time. Idle connections older than the idle timeout are
// destroyed rather than handed out.
func (m *Manager) Acquire(ctx context.Context, id core.PoolIdentity) (*Conn, error) {
	p, ok := m.get(id)
	if !ok {
		return nil, poolerrors.Wrap(ErrPoolNotFound, poolerrors.ErrorTypePool, "cannot acquire").WithPool(id)
	}
	desc := p.desc.Load()

	res := m.puddleOf(p)
	if res == nil {
		ph, err := m.open(ctx, p)
		if err != nil {
			return nil, err
		}
		ph.uses = 1
		return &Conn{pool: p, ph: ph, m: m}, nil
	}

	if desc.MaxWaitTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, desc.MaxWaitTime)
		defer cancel()
	}

	for {
		r, err := res.Acquire(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				p.timeouts.Add(1)
			}
			return nil, poolerrors.Wrap(err, poolerrors.ErrorTypePool, "failed to acquire connection").WithPool(id)
		}

		if desc.IdleTimeout > 0 && r.IdleDuration() > desc.IdleTimeout {
			r.Destroy()
			continue
		}

		ph := r.Value()
		ph.uses++
		conn := &Conn{pool: p, ph: ph, res: r, m: m}
		m.observe(p)
		return conn, nil
	}
}

func (m *Manager) get(id core.PoolIdentity) (*pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[id]
	return p, ok
}

func (m *Manager) puddleOf(p *pool) *puddle.Pool[*physical] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return p.res
}

// Close closes every physical pool.
func (m *Manager) Close() {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[core.PoolIdentity]*pool)
	m.mu.Unlock()

	for _, p := range pools {
		m.close(p)
	}
	m.logger.Info("physical pools closed", zap.Int("pools", len(pools)))
}
