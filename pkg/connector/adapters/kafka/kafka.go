// Package kafka provides a Kafka resource adapter whose connections are
// sarama clients with a synchronous producer.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/ajitpratap0/connpool/pkg/connector/adapters"
	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

// Module is the adapter module name.
const Module = "kafka"

func init() {
	adapters.MustRegister(Module, func() (core.Adapter, error) {
		return NewAdapter(), nil
	})
}

var schema = &core.Schema{
	Name:        Module,
	Description: "Kafka producers through sarama",
	Version:     1,
	Fields: []core.Field{
		{Name: "Brokers", Type: core.FieldTypeString, Required: true, Description: "comma separated host:port list"},
		{Name: "ClientID", Type: core.FieldTypeString, Default: "connpool"},
		{Name: "Version", Type: core.FieldTypeString, Default: "2.8.0"},
		{Name: "Acks", Type: core.FieldTypeString, Default: "all"},
		{Name: "Retries", Type: core.FieldTypeInt, Default: "3"},
		{Name: "Compression", Type: core.FieldTypeString, Default: "none"},
		{Name: "DialTimeout", Type: core.FieldTypeDuration, Default: "10s"},
		{Name: "User", Type: core.FieldTypeString, Description: "SASL user"},
		{Name: "Password", Type: core.FieldTypeString},
		{Name: "SASLMechanism", Type: core.FieldTypeString, Default: "PLAIN"},
	},
}

// Adapter creates Kafka producer factories.
type Adapter struct {
	adapters.Base
}

// NewAdapter creates the Kafka adapter.
func NewAdapter() *Adapter {
	return &Adapter{Base: adapters.Base{
		Module: Module,
		Max:    core.NoTransaction,
		Def:    schema,
	}}
}

func (a *Adapter) CreateFactory(_ context.Context, desc *core.PoolDescriptor, loader *core.Loader) (core.Factory, error) {
	f := &Factory{PropertySet: adapters.NewPropertySet(schema, loader, desc.Properties)}
	if _, err := f.Config(nil); err != nil {
		return nil, err
	}
	return f, nil
}

// Factory creates sarama clients.
type Factory struct {
	*adapters.PropertySet
}

func (f *Factory) TransactionSupport() (core.TransactionSupportLevel, bool) {
	return core.NoTransaction, true
}

// Brokers returns the configured broker addresses.
func (f *Factory) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(f.Get("Brokers", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Config builds the sarama configuration of clients made for subject.
func (f *Factory) Config(subject *core.Subject) (*sarama.Config, error) {
	if len(f.Brokers()) == 0 {
		return nil, errors.New("no brokers configured")
	}

	config := sarama.NewConfig()
	config.ClientID = f.Get("ClientID", "connpool")

	version, err := sarama.ParseKafkaVersion(f.Get("Version", "2.8.0"))
	if err != nil {
		return nil, fmt.Errorf("invalid Version: %w", err)
	}
	config.Version = version

	timeout, err := time.ParseDuration(f.Get("DialTimeout", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DialTimeout: %w", err)
	}
	config.Net.DialTimeout = timeout

	switch strings.ToLower(f.Get("Acks", "all")) {
	case "all", "-1":
		config.Producer.RequiredAcks = sarama.WaitForAll
	case "1", "leader":
		config.Producer.RequiredAcks = sarama.WaitForLocal
	case "0", "none":
		config.Producer.RequiredAcks = sarama.NoResponse
	default:
		return nil, fmt.Errorf("invalid Acks %q", f.Get("Acks", ""))
	}

	retries, err := strconv.Atoi(f.Get("Retries", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid Retries: %w", err)
	}
	config.Producer.Retry.Max = retries
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	switch strings.ToLower(f.Get("Compression", "none")) {
	case "gzip":
		config.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		config.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		config.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		config.Producer.Compression = sarama.CompressionZSTD
	case "none":
		config.Producer.Compression = sarama.CompressionNone
	default:
		return nil, fmt.Errorf("invalid Compression %q", f.Get("Compression", ""))
	}

	if user, password := f.Credentials(subject, f); user != "" {
		config.Net.SASL.Enable = true
		config.Net.SASL.User = user
		config.Net.SASL.Password = password
		// SCRAM needs a client generator; only PLAIN is wired.
		if m := strings.ToUpper(f.Get("SASLMechanism", "PLAIN")); m != sarama.SASLTypePlaintext {
			return nil, fmt.Errorf("unsupported SASLMechanism %q", m)
		}
		config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (f *Factory) CreateManagedConnection(_ context.Context, subject *core.Subject) (core.ManagedConnection, error) {
	config, err := f.Config(subject)
	if err != nil {
		return nil, err
	}
	client, err := sarama.NewClient(f.Brokers(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &ManagedConnection{client: client, producer: producer}, nil
}

// ManagedConnection is one sarama client and its producer.
type ManagedConnection struct {
	adapters.Listeners
	client   sarama.Client
	producer sarama.SyncProducer
}

// Conn is the logical connection handed to applications.
type Conn struct {
	sarama.SyncProducer
	mc *ManagedConnection
}

// Close releases the handle. The producer stays open.
func (c *Conn) Close() error {
	c.mc.Closed(c)
	return nil
}

func (m *ManagedConnection) Connection(context.Context, *core.Subject) (interface{}, error) {
	return &Conn{SyncProducer: m.producer, mc: m}, nil
}

func (m *ManagedConnection) Ping(context.Context) error {
	if err := m.client.RefreshMetadata(); err != nil {
		m.ErrorOccurred(nil, err)
		return err
	}
	if len(m.client.Brokers()) == 0 {
		err := errors.New("no brokers available")
		m.ErrorOccurred(nil, err)
		return err
	}
	return nil
}

func (m *ManagedConnection) Destroy(context.Context) error {
	err := m.producer.Close()
	if cerr := m.client.Close(); cerr != nil && !errors.Is(cerr, sarama.ErrClosedClient) && err == nil {
		err = cerr
	}
	return err
}
