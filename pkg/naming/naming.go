// Package naming provides stores in which pool descriptors are published
// under their reserved internal names.
package naming

import (
	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
)

// binding keys one published name in the namespace of a pool identity.
type binding struct {
	application string
	module      string
	name        string
}

func bindingFor(id core.PoolIdentity, name string) binding {
	return binding{application: id.Application, module: id.Module, name: name}
}

func notBound(id core.PoolIdentity, name string) error {
	return poolerrors.New(poolerrors.ErrorTypeNotBound, "nothing bound under name").
		WithPool(id).
		WithDetail("name", name)
}

func alreadyBound(id core.PoolIdentity, name string) error {
	return poolerrors.New(poolerrors.ErrorTypeNaming, "name already bound").
		WithPool(id).
		WithDetail("name", name)
}
