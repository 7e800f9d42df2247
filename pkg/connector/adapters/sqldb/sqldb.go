// Package sqldb provides a resource adapter for SQL databases reached
// through database/sql drivers (MySQL, Snowflake) and through the native
// go-mysql client.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-mysql-org/go-mysql/client"
	"github.com/go-sql-driver/mysql"
	"github.com/snowflakedb/gosnowflake"

	"github.com/ajitpratap0/connpool/pkg/connector/adapters"
	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

// Module is the adapter module name.
const Module = "sqldb"

// Supported values of the Driver property.
const (
	DriverMySQL       = "mysql"
	DriverMySQLNative = "mysql-native"
	DriverSnowflake   = "snowflake"
)

func init() {
	adapters.MustRegister(Module, func() (core.Adapter, error) {
		return NewAdapter(), nil
	})
}

var schema = &core.Schema{
	Name:        Module,
	Description: "SQL databases through database/sql drivers",
	Version:     1,
	Fields: []core.Field{
		{Name: "Driver", Type: core.FieldTypeString, Required: true, Default: DriverMySQL, Description: "mysql, mysql-native or snowflake"},
		{Name: "Host", Type: core.FieldTypeString, Default: "localhost"},
		{Name: "Port", Type: core.FieldTypeInt, Default: "3306"},
		{Name: "Database", Type: core.FieldTypeString},
		{Name: "User", Type: core.FieldTypeString},
		{Name: "Password", Type: core.FieldTypeString},
		{Name: "ConnectTimeout", Type: core.FieldTypeDuration, Default: "10s", Description: "ignored by mysql-native"},
		{Name: "Account", Type: core.FieldTypeString, Description: "snowflake account identifier"},
		{Name: "Warehouse", Type: core.FieldTypeString},
		{Name: "Schema", Type: core.FieldTypeString},
		{Name: "Role", Type: core.FieldTypeString},
	},
}

// Adapter creates SQL connection factories.
type Adapter struct {
	adapters.Base
}

// NewAdapter creates the SQL adapter.
func NewAdapter() *Adapter {
	return &Adapter{Base: adapters.Base{
		Module: Module,
		Max:    core.LocalTransaction,
		Def:    schema,
	}}
}

func (a *Adapter) CreateFactory(_ context.Context, desc *core.PoolDescriptor, loader *core.Loader) (core.Factory, error) {
	f := &Factory{PropertySet: adapters.NewPropertySet(schema, loader, desc.Properties)}
	switch driver := f.driver(); driver {
	case DriverMySQL, DriverMySQLNative:
	case DriverSnowflake:
		if f.Get("Account", "") == "" {
			return nil, fmt.Errorf("snowflake driver requires Account")
		}
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	return f, nil
}

// Factory opens SQL connections.
type Factory struct {
	*adapters.PropertySet
}

func (f *Factory) driver() string {
	return strings.ToLower(f.Get("Driver", DriverMySQL))
}

func (f *Factory) TransactionSupport() (core.TransactionSupportLevel, bool) {
	return core.LocalTransaction, true
}

func (f *Factory) connectTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(f.Get("ConnectTimeout", "10s"))
	if err != nil {
		return 0, fmt.Errorf("invalid ConnectTimeout: %w", err)
	}
	return d, nil
}

// DSN returns the database/sql driver name and data source name used for
// connections made for subject.
func (f *Factory) DSN(subject *core.Subject) (driverName, dsn string, err error) {
	user, password := f.Credentials(subject, f)
	timeout, err := f.connectTimeout()
	if err != nil {
		return "", "", err
	}

	switch f.driver() {
	case DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(f.Get("Host", "localhost"), f.Get("Port", "3306"))
		cfg.DBName = f.Get("Database", "")
		cfg.User = user
		cfg.Passwd = password
		cfg.Timeout = timeout
		cfg.ParseTime = true
		return "mysql", cfg.FormatDSN(), nil

	case DriverSnowflake:
		dsn, err := gosnowflake.DSN(&gosnowflake.Config{
			Account:      f.Get("Account", ""),
			User:         user,
			Password:     password,
			Database:     f.Get("Database", ""),
			Schema:       f.Get("Schema", ""),
			Warehouse:    f.Get("Warehouse", ""),
			Role:         f.Get("Role", ""),
			LoginTimeout: timeout,
		})
		if err != nil {
			return "", "", fmt.Errorf("invalid snowflake configuration: %w", err)
		}
		return "snowflake", dsn, nil

	default:
		return "", "", fmt.Errorf("driver %q has no data source name", f.driver())
	}
}

func (f *Factory) CreateManagedConnection(ctx context.Context, subject *core.Subject) (core.ManagedConnection, error) {
	if f.driver() == DriverMySQLNative {
		return f.connectNative(subject)
	}

	driverName, dsn, err := f.DSN(subject)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driverName, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close() // the connect error is the one worth reporting
		return nil, fmt.Errorf("failed to connect with %s: %w", driverName, err)
	}
	return &ManagedConnection{db: db, conn: conn}, nil
}

// connectNative dials with the go-mysql client, which applies its own dial
// timeout.
func (f *Factory) connectNative(subject *core.Subject) (core.ManagedConnection, error) {
	user, password := f.Credentials(subject, f)
	addr := net.JoinHostPort(f.Get("Host", "localhost"), f.Get("Port", "3306"))

	conn, err := client.Connect(addr, user, password, f.Get("Database", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &NativeConnection{conn: conn}, nil
}

// ManagedConnection is one physical database/sql connection.
type ManagedConnection struct {
	adapters.Listeners
	db   *sql.DB
	conn *sql.Conn
}

// Conn is the logical connection handed to applications.
type Conn struct {
	*sql.Conn
	mc *ManagedConnection
}

// Close releases the handle. The physical connection stays open.
func (c *Conn) Close() error {
	c.mc.Closed(c)
	return nil
}

func (m *ManagedConnection) Connection(context.Context, *core.Subject) (interface{}, error) {
	return &Conn{Conn: m.conn, mc: m}, nil
}

func (m *ManagedConnection) Ping(ctx context.Context) error {
	if err := m.conn.PingContext(ctx); err != nil {
		m.ErrorOccurred(nil, err)
		return err
	}
	return nil
}

func (m *ManagedConnection) Destroy(context.Context) error {
	err := m.conn.Close()
	if cerr := m.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// NativeConnection is one physical connection of the go-mysql client.
type NativeConnection struct {
	adapters.Listeners
	conn *client.Conn
}

// NativeConn is the logical connection handed to applications.
type NativeConn struct {
	*client.Conn
	mc *NativeConnection
}

// Close releases the handle. The physical connection stays open.
func (c *NativeConn) Close() error {
	c.mc.Closed(c)
	return nil
}

func (m *NativeConnection) Connection(context.Context, *core.Subject) (interface{}, error) {
	return &NativeConn{Conn: m.conn, mc: m}, nil
}

func (m *NativeConnection) Ping(context.Context) error {
	if err := m.conn.Ping(); err != nil {
		m.ErrorOccurred(nil, err)
		return err
	}
	return nil
}

func (m *NativeConnection) Destroy(context.Context) error {
	return m.conn.Close()
}
