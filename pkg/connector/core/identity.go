package core

import (
	"fmt"
	"strings"
)

// ReservedNamePrefix is the naming prefix under which pool descriptors are bound.
const ReservedNamePrefix = "__SYSTEM/pools/"

// PoolIdentity identifies one logical connection pool. Pools defined at the
// server level leave Application and Module empty.
type PoolIdentity struct {
	Name        string `json:"name" yaml:"name"`
	Application string `json:"application,omitempty" yaml:"application,omitempty"`
	Module      string `json:"module,omitempty" yaml:"module,omitempty"`
}

// NewPoolIdentity returns the identity of a server-scoped pool.
func NewPoolIdentity(name string) PoolIdentity {
	return PoolIdentity{Name: name}
}

// IsZero reports whether the identity has no pool name.
func (id PoolIdentity) IsZero() bool {
	return strings.TrimSpace(id.Name) == ""
}

// ReservedName returns the internal name the pool descriptor is published under.
func (id PoolIdentity) ReservedName() string {
	return ReservedNamePrefix + id.Name
}

// ApplicationScoped reports whether the pool belongs to a deployed application.
func (id PoolIdentity) ApplicationScoped() bool {
	return id.Application != ""
}

func (id PoolIdentity) String() string {
	switch {
	case id.Application == "":
		return id.Name
	case id.Module == "":
		return fmt.Sprintf("%s/%s", id.Application, id.Name)
	default:
		return fmt.Sprintf("%s/%s/%s", id.Application, id.Module, id.Name)
	}
}

// Validate checks that the identity can key a pool.
func (id PoolIdentity) Validate() error {
	if id.IsZero() {
		return fmt.Errorf("pool name is required")
	}
	if id.Module != "" && id.Application == "" {
		return fmt.Errorf("pool %q: module %q given without an application", id.Name, id.Module)
	}
	return nil
}
