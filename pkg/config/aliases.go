package config

import (
	"fmt"
	"strings"
	"sync"
)

// AliasResolver expands ${ALIAS=name} password references from a fixed set
// of aliases. Values that are not alias references pass through unchanged.
type AliasResolver struct {
	mu      sync.RWMutex
	aliases map[string]string
}

// NewAliasResolver creates a resolver over a copy of aliases.
func NewAliasResolver(aliases map[string]string) *AliasResolver {
	r := &AliasResolver{aliases: make(map[string]string, len(aliases))}
	for k, v := range aliases {
		r.aliases[k] = v
	}
	return r
}

// SetAlias adds or replaces an alias.
func (r *AliasResolver) SetAlias(name, password string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[name] = password
}

// IsAlias reports whether value is an alias reference.
func IsAlias(value string) bool {
	_, ok := aliasName(value)
	return ok
}

// ResolvePassword returns the password an alias reference points to.
func (r *AliasResolver) ResolvePassword(value string) (string, error) {
	name, ok := aliasName(value)
	if !ok {
		return value, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	password, exists := r.aliases[name]
	if !exists {
		return "", fmt.Errorf("password alias %q is not defined", name)
	}
	return password, nil
}

func aliasName(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if !strings.HasPrefix(v, "${"+aliasPrefix) || !strings.HasSuffix(v, "}") {
		return "", false
	}
	name := v[len("${"+aliasPrefix) : len(v)-1]
	if name == "" {
		return "", false
	}
	return name, true
}
