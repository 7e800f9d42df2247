package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

// Resources is the set of pools and resources to manage.
type Resources struct {
	Pools     []PoolConfig     `yaml:"pools" json:"pools"`
	Resources []ResourceConfig `yaml:"resources" json:"resources"`
}

// PoolConfig is the declared configuration of one connection pool.
type PoolConfig struct {
	// Identification
	Name        string `yaml:"name" json:"name"`
	Application string `yaml:"application,omitempty" json:"application,omitempty"`
	Module      string `yaml:"module,omitempty" json:"module,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Adapter selects the resource adapter module producing the factory
	Adapter              string `yaml:"adapter" json:"adapter"`
	ConnectionDefinition string `yaml:"connection_definition,omitempty" json:"connection_definition,omitempty"`
	TransactionSupport   string `yaml:"transaction_support" json:"transaction_support"`

	// Sizing
	SteadyPoolSize     int `yaml:"steady_pool_size" json:"steady_pool_size"`
	MaxPoolSize        int `yaml:"max_pool_size" json:"max_pool_size"`
	PoolResizeQuantity int `yaml:"pool_resize_quantity" json:"pool_resize_quantity"`

	// Timeouts
	IdleTimeout              time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxWaitTime              time.Duration `yaml:"max_wait_time" json:"max_wait_time"`
	LeakTracingTimeout       time.Duration `yaml:"leak_tracing_timeout" json:"leak_tracing_timeout"`
	ValidateAtMostOncePeriod time.Duration `yaml:"validate_at_most_once_period" json:"validate_at_most_once_period"`

	// Connection creation retries
	CreationRetryAttempts int           `yaml:"creation_retry_attempts" json:"creation_retry_attempts"`
	CreationRetryInterval time.Duration `yaml:"creation_retry_interval" json:"creation_retry_interval"`

	// Behavior
	Pooling             bool `yaml:"pooling" json:"pooling"`
	AssociateWithThread bool `yaml:"associate_with_thread" json:"associate_with_thread"`
	Partitioned         bool `yaml:"partitioned" json:"partitioned"`
	MatchConnections    bool `yaml:"match_connections" json:"match_connections"`
	LazyEnlist          bool `yaml:"lazy_enlist" json:"lazy_enlist"`
	LazyAssociate       bool `yaml:"lazy_associate" json:"lazy_associate"`
	NonComponent        bool `yaml:"non_component" json:"non_component"`
	NonTransactional    bool `yaml:"non_transactional" json:"non_transactional"`
	ConnectionReclaim   bool `yaml:"connection_reclaim" json:"connection_reclaim"`
	MaxConnectionUsage  int  `yaml:"max_connection_usage" json:"max_connection_usage"`
	FailAllConnections  bool `yaml:"fail_all_connections" json:"fail_all_connections"`

	SecurityMaps []core.SecurityMap `yaml:"security_maps,omitempty" json:"security_maps,omitempty"`
	Properties   []core.Property    `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// ResourceConfig is a named resource bound to a pool.
type ResourceConfig struct {
	Name        string `yaml:"name" json:"name"`
	Pool        string `yaml:"pool" json:"pool"`
	Application string `yaml:"application,omitempty" json:"application,omitempty"`
	Module      string `yaml:"module,omitempty" json:"module,omitempty"`
	Enabled     *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// NewPoolConfig creates a pool configuration with default values.
func NewPoolConfig(name, adapter string) *PoolConfig {
	return &PoolConfig{
		Name:                  name,
		Adapter:               adapter,
		TransactionSupport:    core.LocalTransaction.String(),
		SteadyPoolSize:        8,
		MaxPoolSize:           32,
		PoolResizeQuantity:    2,
		IdleTimeout:           300 * time.Second,
		MaxWaitTime:           60 * time.Second,
		CreationRetryAttempts: 0,
		CreationRetryInterval: 10 * time.Second,
		Pooling:               true,
	}
}

// UnmarshalYAML decodes a pool entry on top of the NewPoolConfig defaults.
func (p *PoolConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain PoolConfig
	cfg := NewPoolConfig("", "")
	if err := node.Decode((*plain)(cfg)); err != nil {
		return err
	}
	*p = *cfg
	return nil
}

// Identity returns the identity of the configured pool.
func (p *PoolConfig) Identity() core.PoolIdentity {
	return core.PoolIdentity{Name: p.Name, Application: p.Application, Module: p.Module}
}

// Validate validates the pool configuration for correctness.
func (p *PoolConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Adapter == "" {
		return fmt.Errorf("pool %s: adapter is required", p.Name)
	}
	if _, err := core.ParseTransactionSupport(p.TransactionSupport); err != nil {
		return fmt.Errorf("pool %s: %w", p.Name, err)
	}
	if p.MaxPoolSize <= 0 {
		return fmt.Errorf("pool %s: max_pool_size must be positive", p.Name)
	}
	if p.SteadyPoolSize < 0 {
		return fmt.Errorf("pool %s: steady_pool_size cannot be negative", p.Name)
	}
	if p.SteadyPoolSize > p.MaxPoolSize {
		return fmt.Errorf("pool %s: steady_pool_size cannot exceed max_pool_size", p.Name)
	}
	if p.PoolResizeQuantity <= 0 {
		return fmt.Errorf("pool %s: pool_resize_quantity must be positive", p.Name)
	}
	if p.CreationRetryAttempts < 0 {
		return fmt.Errorf("pool %s: creation_retry_attempts cannot be negative", p.Name)
	}
	if p.IdleTimeout < 0 || p.MaxWaitTime < 0 {
		return fmt.Errorf("pool %s: timeouts cannot be negative", p.Name)
	}
	return nil
}

// Descriptor converts the configuration into a pool descriptor.
func (p *PoolConfig) Descriptor() (*core.PoolDescriptor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	tx, _ := core.ParseTransactionSupport(p.TransactionSupport)

	d := &core.PoolDescriptor{
		Identity:                 p.Identity(),
		Description:              p.Description,
		AdapterModule:            p.Adapter,
		ConnectionDefinition:     p.ConnectionDefinition,
		TransactionSupport:       tx,
		SteadyPoolSize:           p.SteadyPoolSize,
		MaxPoolSize:              p.MaxPoolSize,
		PoolResizeQuantity:       p.PoolResizeQuantity,
		IdleTimeout:              p.IdleTimeout,
		MaxWaitTime:              p.MaxWaitTime,
		LeakTracingTimeout:       p.LeakTracingTimeout,
		ValidateAtMostOncePeriod: p.ValidateAtMostOncePeriod,
		CreationRetry: core.RetryPolicy{
			Attempts: p.CreationRetryAttempts,
			Interval: p.CreationRetryInterval,
		},
		PoolingEnabled:      p.Pooling,
		AssociateWithThread: p.AssociateWithThread,
		Partitioned:         p.Partitioned,
		MatchConnections:    p.MatchConnections,
		LazyEnlist:          p.LazyEnlist,
		LazyAssociate:       p.LazyAssociate,
		NonComponent:        p.NonComponent,
		NonTransactional:    p.NonTransactional,
		ConnectionReclaim:   p.ConnectionReclaim,
		MaxConnectionUsage:  p.MaxConnectionUsage,
		FailAllConnections:  p.FailAllConnections,
		SecurityMaps:        p.SecurityMaps,
		Properties:          core.Properties(p.Properties),
	}
	return d.Clone(), nil
}

// IsEnabled reports whether the resource is enabled. Resources are enabled
// unless configured otherwise.
func (r *ResourceConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// PoolIdentity returns the identity of the pool the resource references.
// Application scoped resources reference pools of the same application.
func (r *ResourceConfig) PoolIdentity() core.PoolIdentity {
	return core.PoolIdentity{Name: r.Pool, Application: r.Application, Module: r.Module}
}

// Validate validates the resources file: pools must be unique and valid, and
// every resource must reference a configured pool.
func (r *Resources) Validate() error {
	pools := make(map[core.PoolIdentity]bool, len(r.Pools))
	for i := range r.Pools {
		p := &r.Pools[i]
		if err := p.Validate(); err != nil {
			return err
		}
		if pools[p.Identity()] {
			return fmt.Errorf("pool %s defined more than once", p.Identity())
		}
		pools[p.Identity()] = true
	}

	names := make(map[string]bool, len(r.Resources))
	for i := range r.Resources {
		res := &r.Resources[i]
		if res.Name == "" {
			return fmt.Errorf("resource name is required")
		}
		if names[res.Application+"/"+res.Module+"/"+res.Name] {
			return fmt.Errorf("resource %s defined more than once", res.Name)
		}
		names[res.Application+"/"+res.Module+"/"+res.Name] = true
		if res.Pool == "" {
			return fmt.Errorf("resource %s: pool is required", res.Name)
		}
		if !pools[res.PoolIdentity()] {
			return fmt.Errorf("resource %s references unknown pool %s", res.Name, res.PoolIdentity())
		}
	}
	return nil
}

// Pool returns the configuration of the pool with the given identity.
func (r *Resources) Pool(id core.PoolIdentity) (*PoolConfig, bool) {
	for i := range r.Pools {
		if r.Pools[i].Identity() == id {
			return &r.Pools[i], true
		}
	}
	return nil, false
}
