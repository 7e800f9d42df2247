package resolver

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

// Property names consulted for default credentials.
const (
	PropertyUsername = "USERNAME"
	PropertyUser     = "USER"
	PropertyPassword = "PASSWORD"

	// factory properties used when the pool declares no user
	factoryUser     = "User"
	factoryPassword = "Password"
)

// DefaultPrincipal resolves the credentials connections of a pool are made
// with when the caller supplies none. USERNAME takes precedence over USER.
// Password aliases are expanded; an alias that cannot be resolved is logged
// and used verbatim. When no user name is configured the factory's own User
// and Password are used instead.
func (r *Resolver) DefaultPrincipal(id core.PoolIdentity, props core.Properties, f core.Factory) core.Principal {
	norm := props.Normalized()

	user, ok := norm[PropertyUsername]
	if !ok {
		user = norm[PropertyUser]
	}
	password := r.resolvePassword(id, norm[PropertyPassword])

	if strings.TrimSpace(user) == "" && f != nil {
		user, _ = f.Property(factoryUser)
		password, _ = f.Property(factoryPassword)
	}

	return core.Principal{Username: user, Password: password}
}

func (r *Resolver) resolvePassword(id core.PoolIdentity, value string) string {
	if r.passwords == nil || value == "" {
		return value
	}
	resolved, err := r.passwords.ResolvePassword(value)
	if err != nil {
		r.logger.Warn("unable to resolve password alias",
			zap.Stringer("pool", id),
			zap.Error(err))
		return value
	}
	return resolved
}
