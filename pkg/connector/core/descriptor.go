package core

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TransactionSupportLevel is the container transaction scale. Levels are ordered.
type TransactionSupportLevel int

const (
	NoTransaction TransactionSupportLevel = iota
	LocalTransaction
	XATransaction
)

func (l TransactionSupportLevel) String() string {
	switch l {
	case NoTransaction:
		return "NoTransaction"
	case LocalTransaction:
		return "LocalTransaction"
	case XATransaction:
		return "XATransaction"
	default:
		return fmt.Sprintf("TransactionSupportLevel(%d)", int(l))
	}
}

// ParseTransactionSupport parses a configured level. Matching ignores case.
func ParseTransactionSupport(s string) (TransactionSupportLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "notransaction", "none":
		return NoTransaction, nil
	case "localtransaction", "local":
		return LocalTransaction, nil
	case "xatransaction", "xa":
		return XATransaction, nil
	default:
		return NoTransaction, fmt.Errorf("unknown transaction support %q", s)
	}
}

// Property is one factory configuration name/value pair.
type Property struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Properties is an ordered set of factory configuration properties. Lookups
// ignore the case of property names.
type Properties []Property

// Get returns the value of the named property.
func (p Properties) Get(name string) (string, bool) {
	for _, prop := range p {
		if strings.EqualFold(prop.Name, name) {
			return prop.Value, true
		}
	}
	return "", false
}

// Set replaces the named property or appends it.
func (p Properties) Set(name, value string) Properties {
	for i := range p {
		if strings.EqualFold(p[i].Name, name) {
			p[i].Value = value
			return p
		}
	}
	return append(p, Property{Name: name, Value: value})
}

// Without returns the properties whose names are not in names.
func (p Properties) Without(names []string) Properties {
	out := make(Properties, 0, len(p))
	for _, prop := range p {
		if !containsFold(names, prop.Name) {
			out = append(out, prop)
		}
	}
	return out
}

// Normalized returns the properties keyed by upper-cased name. Later
// duplicates win.
func (p Properties) Normalized() map[string]string {
	m := make(map[string]string, len(p))
	for _, prop := range p {
		m[strings.ToUpper(prop.Name)] = prop.Value
	}
	return m
}

// Clone returns a copy of the properties.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	copy(out, p)
	return out
}

// RetryPolicy controls physical connection creation retries.
type RetryPolicy struct {
	Attempts int           `json:"attempts" yaml:"attempts"`
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// SecurityMap maps caller principals or groups to a backend principal.
type SecurityMap struct {
	Name             string    `json:"name" yaml:"name"`
	Principals       []string  `json:"principals,omitempty" yaml:"principals,omitempty"`
	UserGroups       []string  `json:"user_groups,omitempty" yaml:"user_groups,omitempty"`
	BackendPrincipal Principal `json:"backend_principal" yaml:"backend_principal"`
}

func (m SecurityMap) equal(o SecurityMap) bool {
	return m.Name == o.Name &&
		m.BackendPrincipal == o.BackendPrincipal &&
		equalStrings(m.Principals, o.Principals) &&
		equalStrings(m.UserGroups, o.UserGroups)
}

// PoolDescriptor is the declared configuration of a pool.
type PoolDescriptor struct {
	Identity             PoolIdentity            `json:"identity"`
	Description          string                  `json:"description,omitempty"`
	AdapterModule        string                  `json:"adapter_module"`
	ConnectionDefinition string                  `json:"connection_definition,omitempty"`
	TransactionSupport   TransactionSupportLevel `json:"transaction_support"`

	// Sizing
	SteadyPoolSize     int `json:"steady_pool_size"`
	MaxPoolSize        int `json:"max_pool_size"`
	PoolResizeQuantity int `json:"pool_resize_quantity"`

	// Timeouts
	IdleTimeout              time.Duration `json:"idle_timeout"`
	MaxWaitTime              time.Duration `json:"max_wait_time"`
	LeakTracingTimeout       time.Duration `json:"leak_tracing_timeout"`
	ValidateAtMostOncePeriod time.Duration `json:"validate_at_most_once_period"`

	CreationRetry RetryPolicy `json:"creation_retry"`

	PoolingEnabled      bool `json:"pooling_enabled"`
	AssociateWithThread bool `json:"associate_with_thread"`
	Partitioned         bool `json:"partitioned"`
	MatchConnections    bool `json:"match_connections"`
	LazyEnlist          bool `json:"lazy_enlist"`
	LazyAssociate       bool `json:"lazy_associate"`
	NonComponent        bool `json:"non_component"`
	NonTransactional    bool `json:"non_transactional"`
	ConnectionReclaim   bool `json:"connection_reclaim"`
	MaxConnectionUsage  int  `json:"max_connection_usage"`
	FailAllConnections  bool `json:"fail_all_connections"`

	SecurityMaps []SecurityMap `json:"security_maps,omitempty"`
	Properties   Properties    `json:"properties,omitempty"`
}

// Clone returns a deep copy of the descriptor.
func (d *PoolDescriptor) Clone() *PoolDescriptor {
	if d == nil {
		return nil
	}
	c := *d
	c.Properties = d.Properties.Clone()
	if d.SecurityMaps != nil {
		c.SecurityMaps = make([]SecurityMap, len(d.SecurityMaps))
		for i, m := range d.SecurityMaps {
			m.Principals = append([]string(nil), m.Principals...)
			m.UserGroups = append([]string(nil), m.UserGroups...)
			c.SecurityMaps[i] = m
		}
	}
	return &c
}

// Validate checks the fields every pool must carry.
func (d *PoolDescriptor) Validate() error {
	if d == nil {
		return fmt.Errorf("pool descriptor is required")
	}
	if err := d.Identity.Validate(); err != nil {
		return err
	}
	if d.AdapterModule == "" {
		return fmt.Errorf("pool %s: adapter module is required", d.Identity)
	}
	if d.SteadyPoolSize < 0 || d.MaxPoolSize < 0 || d.PoolResizeQuantity < 0 {
		return fmt.Errorf("pool %s: pool sizes must not be negative", d.Identity)
	}
	if d.MaxPoolSize > math.MaxInt32 {
		return fmt.Errorf("pool %s: max pool size %d exceeds %d", d.Identity, d.MaxPoolSize, math.MaxInt32)
	}
	if d.MaxPoolSize > 0 && d.SteadyPoolSize > d.MaxPoolSize {
		return fmt.Errorf("pool %s: steady pool size %d exceeds max pool size %d",
			d.Identity, d.SteadyPoolSize, d.MaxPoolSize)
	}
	if d.CreationRetry.Attempts < 0 {
		return fmt.Errorf("pool %s: creation retry attempts must not be negative", d.Identity)
	}
	return nil
}

// SecurityMapsEqual reports whether two descriptors carry the same security maps.
func SecurityMapsEqual(a, b []SecurityMap) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].equal(b[i]) {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
