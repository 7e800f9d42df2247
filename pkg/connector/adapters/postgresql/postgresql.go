// Package postgresql provides the PostgreSQL resource adapter. Factories
// open single pgx connections; pooling is left to the pool manager.
package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ajitpratap0/connpool/pkg/connector/adapters"
	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

// Module is the adapter module name.
const Module = "postgresql"

func init() {
	adapters.MustRegister(Module, func() (core.Adapter, error) {
		return NewAdapter(), nil
	})
}

var schema = &core.Schema{
	Name:        Module,
	Description: "PostgreSQL connections through pgx",
	Version:     1,
	Fields: []core.Field{
		{Name: "URL", Type: core.FieldTypeString, Required: true, Description: "postgres:// URL or key=value DSN"},
		{Name: "User", Type: core.FieldTypeString, Description: "user when the subject carries none"},
		{Name: "Password", Type: core.FieldTypeString},
		{Name: "ConnectTimeout", Type: core.FieldTypeDuration, Default: "10s"},
		{Name: "ApplicationName", Type: core.FieldTypeString, Default: "connpool"},
		{Name: "HealthQuery", Type: core.FieldTypeString, Description: "query run by pings instead of the protocol ping"},
	},
}

// Adapter creates PostgreSQL connection factories.
type Adapter struct {
	adapters.Base
}

// NewAdapter creates the PostgreSQL adapter.
func NewAdapter() *Adapter {
	return &Adapter{Base: adapters.Base{
		Module: Module,
		Max:    core.LocalTransaction,
		Def:    schema,
	}}
}

func (a *Adapter) CreateFactory(_ context.Context, desc *core.PoolDescriptor, loader *core.Loader) (core.Factory, error) {
	f := &Factory{PropertySet: adapters.NewPropertySet(schema, loader, desc.Properties)}
	if _, err := pgx.ParseConfig(f.Get("URL", "")); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	return f, nil
}

// Factory opens pgx connections.
type Factory struct {
	*adapters.PropertySet
}

func (f *Factory) TransactionSupport() (core.TransactionSupportLevel, bool) {
	return core.LocalTransaction, true
}

// ConnConfig builds the pgx configuration of connections made for subject.
func (f *Factory) ConnConfig(subject *core.Subject) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(f.Get("URL", ""))
	if err != nil {
		return nil, err
	}

	if user, password := f.Credentials(subject, f); user != "" {
		cfg.User = user
		cfg.Password = password
	}
	if timeout := f.Get("ConnectTimeout", ""); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid ConnectTimeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}
	if name := f.Get("ApplicationName", ""); name != "" {
		cfg.RuntimeParams["application_name"] = name
	}
	return cfg, nil
}

func (f *Factory) CreateManagedConnection(ctx context.Context, subject *core.Subject) (core.ManagedConnection, error) {
	cfg, err := f.ConnConfig(subject)
	if err != nil {
		return nil, err
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &ManagedConnection{conn: conn, healthQuery: f.Get("HealthQuery", "")}, nil
}

// ManagedConnection is one physical PostgreSQL connection.
type ManagedConnection struct {
	adapters.Listeners
	conn        *pgx.Conn
	healthQuery string
}

// Conn is the logical connection handed to applications.
type Conn struct {
	*pgx.Conn
	mc *ManagedConnection
}

// Close releases the handle. The physical connection stays open.
func (c *Conn) Close() {
	c.mc.Closed(c)
}

func (m *ManagedConnection) Connection(context.Context, *core.Subject) (interface{}, error) {
	return &Conn{Conn: m.conn, mc: m}, nil
}

func (m *ManagedConnection) Ping(ctx context.Context) error {
	var err error
	if m.healthQuery != "" {
		_, err = m.conn.Exec(ctx, m.healthQuery)
	} else {
		err = m.conn.Ping(ctx)
	}
	if err != nil {
		m.ErrorOccurred(nil, err)
	}
	return err
}

func (m *ManagedConnection) Destroy(ctx context.Context) error {
	return m.conn.Close(ctx)
}
