package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
)

// Factory is an in-memory connection factory.
type Factory struct {
	mu         sync.Mutex
	props      map[string]string
	txLevel    core.TransactionSupportLevel
	declaresTx bool
	setCalls   []core.Property
	created    int32

	// CreateErr fails every CreateManagedConnection call
	CreateErr error
	// PingErr is returned by pings on connections of this factory
	PingErr error
}

// NewFactory creates a factory holding props.
func NewFactory(props map[string]string) *Factory {
	f := &Factory{
		props: make(map[string]string),
	}
	for k, v := range props {
		f.put(k, v)
	}
	return f
}

func (f *Factory) put(name, value string) {
	f.props[strings.ToUpper(name)] = value
}

// WithTransactionSupport makes the factory declare level at runtime.
func (f *Factory) WithTransactionSupport(level core.TransactionSupportLevel) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txLevel = level
	f.declaresTx = true
	return f
}

func (f *Factory) TransactionSupport() (core.TransactionSupportLevel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txLevel, f.declaresTx
}

func (f *Factory) Property(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.props[strings.ToUpper(name)]
	return v, ok
}

func (f *Factory) SetProperty(name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(name, value)
	f.setCalls = append(f.setCalls, core.Property{Name: name, Value: value})
	return nil
}

// SetCalls returns the properties applied through SetProperty.
func (f *Factory) SetCalls() []core.Property {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Property(nil), f.setCalls...)
}

// Created returns the number of managed connections created.
func (f *Factory) Created() int {
	return int(atomic.LoadInt32(&f.created))
}

func (f *Factory) CreateManagedConnection(_ context.Context, subject *core.Subject) (core.ManagedConnection, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	atomic.AddInt32(&f.created, 1)
	return &ManagedConnection{factory: f, Subject: subject}, nil
}

// ManagedConnection is an in-memory managed connection.
type ManagedConnection struct {
	mu        sync.Mutex
	factory   *Factory
	listeners []core.ConnectionEventListener
	destroyed bool

	Subject *core.Subject
}

func (m *ManagedConnection) AddConnectionEventListener(l core.ConnectionEventListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Listeners returns the registered event listeners.
func (m *ManagedConnection) Listeners() []core.ConnectionEventListener {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.ConnectionEventListener(nil), m.listeners...)
}

func (m *ManagedConnection) Connection(_ context.Context, subject *core.Subject) (interface{}, error) {
	return &Handle{mc: m, Subject: subject}, nil
}

func (m *ManagedConnection) Ping(context.Context) error {
	if m.factory.PingErr != nil {
		return m.factory.PingErr
	}
	if m.Destroyed() {
		return errors.New("connection destroyed")
	}
	return nil
}

func (m *ManagedConnection) Destroy(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = true
	return nil
}

// Destroyed reports whether Destroy was called.
func (m *ManagedConnection) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

// Handle is the logical connection handed out by ManagedConnection.
type Handle struct {
	mc      *ManagedConnection
	Subject *core.Subject
}

// Close notifies listeners that the handle was closed.
func (h *Handle) Close() {
	for _, l := range h.mc.Listeners() {
		l.ConnectionClosed(core.ConnectionEvent{Type: core.ConnectionClosed, Handle: h})
	}
}

// Adapter is an in-memory resource adapter.
type Adapter struct {
	mu        sync.Mutex
	name      string
	factories []*Factory

	Max        core.TransactionSupportLevel
	SchemaDef  *core.Schema
	Defaults   core.Properties
	CreateErr  error
	NilFactory bool
	// Configure customizes each created factory
	Configure func(desc *core.PoolDescriptor, f *Factory)
}

// NewAdapter creates an adapter for module supporting up to XA transactions.
func NewAdapter(module string) *Adapter {
	return &Adapter{name: module, Max: core.XATransaction}
}

func (a *Adapter) ModuleName() string { return a.name }

func (a *Adapter) Loader() *core.Loader {
	return &core.Loader{Module: a.name, Defaults: a.Defaults}
}

func (a *Adapter) Schema() *core.Schema { return a.SchemaDef }

func (a *Adapter) TransactionSupport() core.TransactionSupportLevel { return a.Max }

func (a *Adapter) CreateFactory(_ context.Context, desc *core.PoolDescriptor, loader *core.Loader) (core.Factory, error) {
	if a.CreateErr != nil {
		return nil, a.CreateErr
	}
	if a.NilFactory {
		return nil, nil
	}

	f := NewFactory(nil)
	if loader != nil {
		for _, p := range loader.Defaults {
			f.put(p.Name, p.Value)
		}
	}
	for _, p := range desc.Properties {
		f.put(p.Name, p.Value)
	}
	if a.Configure != nil {
		a.Configure(desc, f)
	}

	a.mu.Lock()
	a.factories = append(a.factories, f)
	a.mu.Unlock()
	return f, nil
}

// Factories returns every factory the adapter created.
func (a *Adapter) Factories() []*Factory {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Factory(nil), a.factories...)
}

// AdapterResolver resolves adapters from a fixed set.
type AdapterResolver struct {
	adapters map[string]core.Adapter
}

// NewAdapterResolver creates a resolver over adapters.
func NewAdapterResolver(adapters ...*Adapter) *AdapterResolver {
	r := &AdapterResolver{adapters: make(map[string]core.Adapter)}
	for _, a := range adapters {
		r.adapters[a.ModuleName()] = a
	}
	return r
}

func (r *AdapterResolver) ResolveAdapter(_ context.Context, module string) (core.Adapter, error) {
	a, ok := r.adapters[module]
	if !ok {
		return nil, poolerrors.Newf(poolerrors.ErrorTypeAdapterNotInitialized, "adapter %s not found", module)
	}
	return a, nil
}

// PoolManager records physical pool requests.
type PoolManager struct {
	mu           sync.Mutex
	pools        map[core.PoolIdentity]core.Classification
	killed       []core.PoolIdentity
	reconfigured []*core.PoolDescriptor

	CreateErr      error
	KillErr        error
	ReconfigureErr error
}

// NewPoolManager creates an empty recording pool manager.
func NewPoolManager() *PoolManager {
	return &PoolManager{pools: make(map[core.PoolIdentity]core.Classification)}
}

func (m *PoolManager) CreateEmpty(_ context.Context, id core.PoolIdentity, class core.Classification, _ core.Env) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[id] = class
	return nil
}

func (m *PoolManager) Kill(_ context.Context, id core.PoolIdentity) error {
	if m.KillErr != nil {
		return m.KillErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pools, id)
	m.killed = append(m.killed, id)
	return nil
}

func (m *PoolManager) ReconfigureAttributes(_ context.Context, desc *core.PoolDescriptor) error {
	if m.ReconfigureErr != nil {
		return m.ReconfigureErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconfigured = append(m.reconfigured, desc.Clone())
	return nil
}

func (m *PoolManager) Flush(_ context.Context, id core.PoolIdentity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pools[id]
	return ok, nil
}

func (m *PoolManager) SwitchOnMatching(_ context.Context, id core.PoolIdentity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pools[id]
	return ok, nil
}

func (m *PoolManager) Stats(id core.PoolIdentity) (core.PoolStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pools[id]
	return core.PoolStats{}, ok
}

// Pool returns the classification a pool was created with.
func (m *PoolManager) Pool(id core.PoolIdentity) (core.Classification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.pools[id]
	return c, ok
}

// Killed returns the identities passed to Kill.
func (m *PoolManager) Killed() []core.PoolIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.PoolIdentity(nil), m.killed...)
}

// Reconfigured returns the descriptors passed to ReconfigureAttributes.
func (m *PoolManager) Reconfigured() []*core.PoolDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*core.PoolDescriptor(nil), m.reconfigured...)
}

// Catalog is a fixed resource catalog.
type Catalog struct {
	mu         sync.Mutex
	referenced map[core.PoolIdentity]bool
	pools      map[core.PoolIdentity]core.ResourceConfig
	resources  map[string]core.PoolIdentity
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		referenced: make(map[core.PoolIdentity]bool),
		pools:      make(map[core.PoolIdentity]core.ResourceConfig),
		resources:  make(map[string]core.PoolIdentity),
	}
}

// AddPool makes desc deployable through the catalog.
func (c *Catalog) AddPool(desc *core.PoolDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools[desc.Identity] = core.ResourceConfig{Name: desc.Identity.Name, Pool: desc.Identity, Descriptor: desc.Clone(), Enabled: true}
}

// AddResource binds a resource name to a pool and marks the pool referenced.
func (c *Catalog) AddResource(name string, id core.PoolIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[name] = id
	c.referenced[id] = true
}

func (c *Catalog) IsPoolReferenced(id core.PoolIdentity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.referenced[id]
}

func (c *Catalog) PoolConfig(id core.PoolIdentity) (core.ResourceConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg, ok := c.pools[id]
	return cfg, ok
}

func (c *Catalog) PoolForResource(name, _, _ string) (core.PoolIdentity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.resources[name]
	return id, ok
}

// Deployer records deploy requests and delegates to the given functions.
type Deployer struct {
	mu         sync.Mutex
	deployed   []core.ResourceConfig
	undeployed []core.ResourceConfig

	DeployFn   func(ctx context.Context, cfg core.ResourceConfig) error
	UndeployFn func(ctx context.Context, cfg core.ResourceConfig) error
}

func (d *Deployer) Deploy(ctx context.Context, cfg core.ResourceConfig) error {
	d.mu.Lock()
	d.deployed = append(d.deployed, cfg)
	d.mu.Unlock()
	if d.DeployFn != nil {
		return d.DeployFn(ctx, cfg)
	}
	return nil
}

func (d *Deployer) Undeploy(ctx context.Context, cfg core.ResourceConfig) error {
	d.mu.Lock()
	d.undeployed = append(d.undeployed, cfg)
	d.mu.Unlock()
	if d.UndeployFn != nil {
		return d.UndeployFn(ctx, cfg)
	}
	return nil
}

// Deployed returns the configs passed to Deploy.
func (d *Deployer) Deployed() []core.ResourceConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]core.ResourceConfig(nil), d.deployed...)
}

// Undeployed returns the configs passed to Undeploy.
func (d *Deployer) Undeployed() []core.ResourceConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]core.ResourceConfig(nil), d.undeployed...)
}

// Descriptor returns a valid pooled descriptor for module with the given
// properties.
func Descriptor(name, module string, props ...core.Property) *core.PoolDescriptor {
	return &core.PoolDescriptor{
		Identity:           core.NewPoolIdentity(name),
		AdapterModule:      module,
		TransactionSupport: core.LocalTransaction,
		SteadyPoolSize:     5,
		MaxPoolSize:        20,
		PoolResizeQuantity: 2,
		PoolingEnabled:     true,
		Properties:         core.Properties(props),
	}
}
