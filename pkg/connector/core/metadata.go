package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Classification is the physical pooling strategy derived from descriptor flags.
type Classification string

const (
	ClassificationStandard            Classification = "standard"
	ClassificationPoolingDisabled     Classification = "pooling_disabled"
	ClassificationAssociateWithThread Classification = "associate_with_thread"
	ClassificationPartitioned         Classification = "partitioned"
)

// Classify derives the pooling strategy. Precedence is pooling, then thread
// association, then partitioning.
func Classify(d *PoolDescriptor) Classification {
	switch {
	case !d.PoolingEnabled:
		return ClassificationPoolingDisabled
	case d.AssociateWithThread:
		return ClassificationAssociateWithThread
	case d.Partitioned:
		return ClassificationPartitioned
	default:
		return ClassificationStandard
	}
}

// ReconfigAction is the outcome of comparing two descriptors.
type ReconfigAction int

const (
	NoChange ReconfigAction = iota
	UpdateAttributes
	Recreate
)

func (a ReconfigAction) String() string {
	switch a {
	case NoChange:
		return "NO_CHANGE"
	case UpdateAttributes:
		return "UPDATE_ATTRIBUTES"
	case Recreate:
		return "RECREATE"
	default:
		return fmt.Sprintf("ReconfigAction(%d)", int(a))
	}
}

// Principal is a user name and password pair.
type Principal struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// IsEmpty reports whether no user name is set.
func (p Principal) IsEmpty() bool {
	return p.Username == ""
}

func (p Principal) String() string {
	if p.Password == "" {
		return p.Username
	}
	return p.Username + ":****"
}

// PasswordCredential binds a principal to the factory it authenticates against.
type PasswordCredential struct {
	Username string
	Password string
	Factory  Factory
}

// Subject is the security bundle passed to connection creation.
type Subject struct {
	Principal   Principal
	Credentials []PasswordCredential
}

// NewSubject builds the subject used for connections created by f on behalf of p.
func NewSubject(f Factory, p Principal) *Subject {
	return &Subject{
		Principal: p,
		Credentials: []PasswordCredential{{
			Username: p.Username,
			Password: p.Password,
			Factory:  f,
		}},
	}
}

// CredentialFor returns the credential bound to f.
func (s *Subject) CredentialFor(f Factory) (PasswordCredential, bool) {
	if s == nil {
		return PasswordCredential{}, false
	}
	for _, c := range s.Credentials {
		if c.Factory == f {
			return c, true
		}
	}
	return PasswordCredential{}, false
}

// FactoryHandle references a created connection factory. Handles are compared
// by pointer.
type FactoryHandle struct {
	ID            uuid.UUID
	Factory       Factory
	AdapterModule string
	CreatedAt     time.Time
}

// NewFactoryHandle wraps a factory produced by the named adapter module.
func NewFactoryHandle(f Factory, adapterModule string) *FactoryHandle {
	return &FactoryHandle{
		ID:            uuid.New(),
		Factory:       f,
		AdapterModule: adapterModule,
		CreatedAt:     time.Now(),
	}
}

// PoolRuntimeMetadata holds the cached facts about a resolved pool. Values are
// treated as immutable snapshots; updates replace the whole value.
type PoolRuntimeMetadata struct {
	Identity           PoolIdentity
	Handle             *FactoryHandle
	Classification     Classification
	DefaultPrincipal   Principal
	DefaultSubject     *Subject
	TransactionSupport TransactionSupportLevel
	NonComponent       bool
	NonTransactional   bool
	LazyEnlistable     bool
	LazyAssociable     bool
	SecurityMaps       []SecurityMap
}

// WithFlags returns a copy carrying the given component and transaction flags.
// Lazy flags are cleared when the pool becomes non-component or non-transactional.
func (m *PoolRuntimeMetadata) WithFlags(nonComponent, nonTransactional bool) *PoolRuntimeMetadata {
	c := *m
	c.NonComponent = nonComponent
	c.NonTransactional = nonTransactional
	if nonComponent || nonTransactional {
		c.LazyEnlistable = false
		c.LazyAssociable = false
	}
	return &c
}
