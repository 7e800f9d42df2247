package core

import (
	"context"
	"strings"
	"time"
)

// Env carries caller supplied lookup hints through naming and pool creation.
type Env map[string]string

// Naming publishes and looks up pool descriptors by internal name.
type Naming interface {
	Publish(ctx context.Context, id PoolIdentity, name string, desc *PoolDescriptor, overwrite bool) error
	// Unpublish returns a not_bound error when nothing is bound under name
	Unpublish(ctx context.Context, id PoolIdentity, name string) error
	Lookup(ctx context.Context, id PoolIdentity, name string, env Env) (*PoolDescriptor, error)
}

// AdapterResolver locates resource adapters by module name.
type AdapterResolver interface {
	ResolveAdapter(ctx context.Context, module string) (Adapter, error)
}

// Loader is the adapter scoped environment a factory is created in.
type Loader struct {
	Module string
	// Defaults apply to every factory of the adapter unless the pool overrides them
	Defaults Properties
}

// Adapter produces connection factories for one resource type.
type Adapter interface {
	// Metadata
	ModuleName() string
	Loader() *Loader
	Schema() *Schema

	// TransactionSupport is the highest level the adapter can honor
	TransactionSupport() TransactionSupportLevel

	CreateFactory(ctx context.Context, desc *PoolDescriptor, loader *Loader) (Factory, error)
}

// Factory manufactures raw connections to the backing resource.
type Factory interface {
	CreateManagedConnection(ctx context.Context, subject *Subject) (ManagedConnection, error)

	// TransactionSupport reports the level the factory declares at runtime, if any
	TransactionSupport() (TransactionSupportLevel, bool)

	// Bean style configuration
	Property(name string) (string, bool)
	SetProperty(name, value string) error
}

// ManagedConnection is a physical connection created by a Factory.
type ManagedConnection interface {
	AddConnectionEventListener(l ConnectionEventListener)
	Connection(ctx context.Context, subject *Subject) (interface{}, error)
	Ping(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// ConnectionEventType identifies a managed connection event.
type ConnectionEventType string

const (
	ConnectionClosed        ConnectionEventType = "connection_closed"
	ConnectionErrorOccurred ConnectionEventType = "connection_error_occurred"
)

// ConnectionEvent is delivered to listeners registered on a managed connection.
type ConnectionEvent struct {
	Type   ConnectionEventType
	Handle interface{}
	Err    error
}

// ConnectionEventListener observes managed connection events.
type ConnectionEventListener interface {
	ConnectionClosed(ev ConnectionEvent)
	ConnectionErrorOccurred(ev ConnectionEvent)
}

// PoolManager controls physical pools.
type PoolManager interface {
	CreateEmpty(ctx context.Context, id PoolIdentity, class Classification, env Env) error
	// Kill returns nil when no pool exists
	Kill(ctx context.Context, id PoolIdentity) error
	ReconfigureAttributes(ctx context.Context, desc *PoolDescriptor) error
	Flush(ctx context.Context, id PoolIdentity) (bool, error)
	SwitchOnMatching(ctx context.Context, id PoolIdentity) (bool, error)
	Stats(id PoolIdentity) (PoolStats, bool)
}

// PoolStats represents physical pool statistics
type PoolStats struct {
	Active   int   `json:"active"`
	Idle     int   `json:"idle"`
	Total    int   `json:"total"`
	MaxSize  int   `json:"max_size"`
	Waits    int64 `json:"waits"`
	Timeouts int64 `json:"timeouts"`
}

// ResourceConfig is a deployable configuration. A config carrying a
// Descriptor materializes the pool itself; otherwise it is a resource that
// references Pool.
type ResourceConfig struct {
	Name       string          `json:"name"`
	Pool       PoolIdentity    `json:"pool"`
	Descriptor *PoolDescriptor `json:"descriptor,omitempty"`
	Enabled    bool            `json:"enabled"`
}

// IsPool reports whether the config deploys a pool rather than a resource.
func (c ResourceConfig) IsPool() bool {
	return c.Descriptor != nil
}

// ResourceDeployer deploys resource configurations.
type ResourceDeployer interface {
	Deploy(ctx context.Context, cfg ResourceConfig) error
	Undeploy(ctx context.Context, cfg ResourceConfig) error
}

// ResourceCatalog answers questions about configured resources.
type ResourceCatalog interface {
	IsPoolReferenced(id PoolIdentity) bool
	PoolConfig(id PoolIdentity) (ResourceConfig, bool)
	PoolForResource(name, application, module string) (PoolIdentity, bool)
}

// PasswordResolver expands password alias references.
type PasswordResolver interface {
	ResolvePassword(value string) (string, error)
}

// Schema describes the configuration properties an adapter's factories accept.
type Schema struct {
	Name        string
	Description string
	Fields      []Field
	Version     int
	CreatedAt   time.Time
}

// Field describes one factory property.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	Default     string
}

// FieldType represents the type of a factory property
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeInt      FieldType = "int"
	FieldTypeBool     FieldType = "bool"
	FieldTypeDuration FieldType = "duration"
)

// Field returns the schema field with the given name, ignoring case.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	for _, f := range s.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}
