// Package mongodb provides the MongoDB resource adapter.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ajitpratap0/connpool/pkg/connector/adapters"
	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

// Module is the adapter module name.
const Module = "mongodb"

func init() {
	adapters.MustRegister(Module, func() (core.Adapter, error) {
		return NewAdapter(), nil
	})
}

var schema = &core.Schema{
	Name:        Module,
	Description: "MongoDB deployments through the official driver",
	Version:     1,
	Fields: []core.Field{
		{Name: "URI", Type: core.FieldTypeString, Required: true},
		{Name: "Database", Type: core.FieldTypeString},
		{Name: "User", Type: core.FieldTypeString},
		{Name: "Password", Type: core.FieldTypeString},
		{Name: "AuthSource", Type: core.FieldTypeString, Default: "admin"},
		{Name: "ConnectTimeout", Type: core.FieldTypeDuration, Default: "10s"},
		{Name: "AppName", Type: core.FieldTypeString, Default: "connpool"},
	},
}

// Adapter creates MongoDB client factories. MongoDB factories declare no
// transaction support, so pools use the level they are configured with.
type Adapter struct {
	adapters.Base
}

// NewAdapter creates the MongoDB adapter.
func NewAdapter() *Adapter {
	return &Adapter{Base: adapters.Base{
		Module: Module,
		Max:    core.LocalTransaction,
		Def:    schema,
	}}
}

func (a *Adapter) CreateFactory(_ context.Context, desc *core.PoolDescriptor, loader *core.Loader) (core.Factory, error) {
	f := &Factory{PropertySet: adapters.NewPropertySet(schema, loader, desc.Properties)}
	if uri := f.Get("URI", ""); uri != "" {
		if err := options.Client().ApplyURI(uri).Validate(); err != nil {
			return nil, fmt.Errorf("invalid URI: %w", err)
		}
	}
	return f, nil
}

// Factory creates MongoDB clients.
type Factory struct {
	*adapters.PropertySet
}

func (f *Factory) TransactionSupport() (core.TransactionSupportLevel, bool) {
	return core.NoTransaction, false
}

// ClientOptions builds the driver options of clients made for subject.
func (f *Factory) ClientOptions(subject *core.Subject) (*options.ClientOptions, error) {
	opts := options.Client().
		ApplyURI(f.Get("URI", "")).
		SetAppName(f.Get("AppName", "connpool")).
		SetMaxPoolSize(1)

	timeout, err := time.ParseDuration(f.Get("ConnectTimeout", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ConnectTimeout: %w", err)
	}
	opts.SetConnectTimeout(timeout)
	opts.SetServerSelectionTimeout(timeout)

	if user, password := f.Credentials(subject, f); user != "" {
		opts.SetAuth(options.Credential{
			Username:   user,
			Password:   password,
			AuthSource: f.Get("AuthSource", "admin"),
		})
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (f *Factory) CreateManagedConnection(ctx context.Context, subject *core.Subject) (core.ManagedConnection, error) {
	opts, err := f.ClientOptions(subject)
	if err != nil {
		return nil, err
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	return &ManagedConnection{client: client, database: f.Get("Database", "")}, nil
}

// ManagedConnection is one MongoDB client limited to a single connection.
type ManagedConnection struct {
	adapters.Listeners
	client   *mongo.Client
	database string
}

// Conn is the logical connection handed to applications.
type Conn struct {
	*mongo.Client
	mc *ManagedConnection
}

// Database returns the configured database, if any.
func (c *Conn) Database() *mongo.Database {
	if c.mc.database == "" {
		return nil
	}
	return c.Client.Database(c.mc.database)
}

// Close releases the handle. The client stays connected.
func (c *Conn) Close() {
	c.mc.Closed(c)
}

func (m *ManagedConnection) Connection(context.Context, *core.Subject) (interface{}, error) {
	return &Conn{Client: m.client, mc: m}, nil
}

func (m *ManagedConnection) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		m.ErrorOccurred(nil, err)
		return err
	}
	return nil
}

func (m *ManagedConnection) Destroy(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
