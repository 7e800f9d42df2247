package adapters

import (
	"strings"
	"sync"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

// Base carries the metadata every adapter exposes. Adapters embed it and
// implement CreateFactory.
type Base struct {
	Module   string
	Max      core.TransactionSupportLevel
	Def      *core.Schema
	Defaults core.Properties
}

func (b *Base) ModuleName() string { return b.Module }

func (b *Base) Loader() *core.Loader {
	return &core.Loader{Module: b.Module, Defaults: b.Defaults.Clone()}
}

func (b *Base) Schema() *core.Schema { return b.Def }

func (b *Base) TransactionSupport() core.TransactionSupportLevel { return b.Max }

// PropertySet holds factory configuration. Names are matched ignoring case
// and keep the spelling they were first set with.
type PropertySet struct {
	mu     sync.RWMutex
	values map[string]core.Property
}

// NewPropertySet builds the configuration of a new factory: schema defaults,
// then loader defaults, then the pool's own properties.
func NewPropertySet(schema *core.Schema, loader *core.Loader, props core.Properties) *PropertySet {
	s := &PropertySet{values: make(map[string]core.Property)}
	if schema != nil {
		for _, f := range schema.Fields {
			if f.Default != "" {
				s.put(f.Name, f.Default)
			}
		}
	}
	if loader != nil {
		for _, p := range loader.Defaults {
			s.put(p.Name, p.Value)
		}
	}
	for _, p := range props {
		s.put(p.Name, p.Value)
	}
	return s
}

func (s *PropertySet) put(name, value string) {
	key := strings.ToUpper(name)
	if prev, ok := s.values[key]; ok {
		name = prev.Name
	}
	s.values[key] = core.Property{Name: name, Value: value}
}

func (s *PropertySet) Property(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.values[strings.ToUpper(name)]
	return p.Value, ok
}

func (s *PropertySet) SetProperty(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(name, value)
	return nil
}

// Get returns the named property or def when it is unset or empty.
func (s *PropertySet) Get(name, def string) string {
	if v, ok := s.Property(name); ok && v != "" {
		return v
	}
	return def
}

// Credentials returns the user and password connections should use: the
// subject's credential for f when present, otherwise the configured User
// and Password.
func (s *PropertySet) Credentials(subject *core.Subject, f core.Factory) (user, password string) {
	user, password = s.Get("User", ""), s.Get("Password", "")
	if cred, ok := subject.CredentialFor(f); ok && cred.Username != "" {
		user, password = cred.Username, cred.Password
	}
	return user, password
}

// Listeners fans connection events out to registered listeners.
type Listeners struct {
	mu        sync.Mutex
	listeners []core.ConnectionEventListener
}

func (l *Listeners) AddConnectionEventListener(listener core.ConnectionEventListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, listener)
}

func (l *Listeners) snapshot() []core.ConnectionEventListener {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.ConnectionEventListener(nil), l.listeners...)
}

// Closed notifies listeners that handle was closed by its user.
func (l *Listeners) Closed(handle interface{}) {
	for _, listener := range l.snapshot() {
		listener.ConnectionClosed(core.ConnectionEvent{Type: core.ConnectionClosed, Handle: handle})
	}
}

// ErrorOccurred notifies listeners that the connection behind handle failed.
func (l *Listeners) ErrorOccurred(handle interface{}, err error) {
	for _, listener := range l.snapshot() {
		listener.ConnectionErrorOccurred(core.ConnectionEvent{Type: core.ConnectionErrorOccurred, Handle: handle, Err: err})
	}
}
