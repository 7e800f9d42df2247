package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding settings.
const EnvPrefix = "CONNPOOL"

// Settings are the process wide settings.
type Settings struct {
	Log         LogSettings         `mapstructure:"log"`
	Naming      NamingSettings      `mapstructure:"naming"`
	Metrics     MetricsSettings     `mapstructure:"metrics"`
	Tracing     TracingSettings     `mapstructure:"tracing"`
	HealthCheck HealthCheckSettings `mapstructure:"health_check"`

	// PasswordAliases maps alias names to passwords for ${ALIAS=name} references
	PasswordAliases map[string]string `mapstructure:"password_aliases"`

	// LegacyPersistenceCompat turns lazy connection association off for every pool
	LegacyPersistenceCompat bool `mapstructure:"legacy_persistence_compat"`

	v *viper.Viper
}

// LogSettings configures the global logger
type LogSettings struct {
	Level       string `mapstructure:"level"`
	Encoding    string `mapstructure:"encoding"`
	Development bool   `mapstructure:"development"`
}

// NamingSettings selects where pool descriptors are published
type NamingSettings struct {
	Store string `mapstructure:"store"` // memory or pebble
	Path  string `mapstructure:"path"`
}

// MetricsSettings configures the prometheus endpoint
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// TracingSettings configures span export
type TracingSettings struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// HealthCheckSettings configures periodic pool pings
type HealthCheckSettings struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.development", false)
	v.SetDefault("naming.store", "memory")
	v.SetDefault("naming.path", "connpool-naming")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "connpool")
	v.SetDefault("health_check.interval", 30*time.Second)
	v.SetDefault("health_check.timeout", 5*time.Second)
	v.SetDefault("password_aliases", map[string]string{})
	v.SetDefault("legacy_persistence_compat", false)
}

// DefaultSettings returns settings built from defaults and the environment only.
func DefaultSettings() *Settings {
	s, err := LoadSettings("")
	if err != nil {
		// defaults always decode
		panic(err)
	}
	return s
}

// LoadSettings reads settings from filePath, if given, with CONNPOOL_*
// environment variables taking precedence.
func LoadSettings(filePath string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	s := &Settings{v: v}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate validates the settings for correctness.
func (s *Settings) Validate() error {
	switch s.Naming.Store {
	case "memory":
	case "pebble":
		if s.Naming.Path == "" {
			return fmt.Errorf("naming.path is required for the pebble store")
		}
	default:
		return fmt.Errorf("unknown naming store %q", s.Naming.Store)
	}
	if s.HealthCheck.Interval < 0 {
		return fmt.Errorf("health_check.interval cannot be negative")
	}
	return nil
}

// LazyAssociationDisabled reports the current value of the legacy
// persistence compatibility switch. The value is read on every call so
// environment changes apply to the next pool resolution.
func (s *Settings) LazyAssociationDisabled() bool {
	if s == nil {
		return false
	}
	if s.v != nil {
		return s.v.GetBool("legacy_persistence_compat")
	}
	return s.LegacyPersistenceCompat
}

// Set overrides a setting by key, as if it had been read from the file.
func (s *Settings) Set(key string, value interface{}) {
	if s.v == nil {
		s.v = viper.New()
		setDefaults(s.v)
	}
	s.v.Set(key, value)
	_ = s.v.Unmarshal(s)
}
