// Package config manages the cartrustd daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables layered over defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete cartrustd configuration.
type Config struct {
	Admin     AdminConfig     `koanf:"admin"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	Transport TransportConfig `koanf:"transport"`
	Security  SecurityConfig  `koanf:"security"`
	OOB       OOBConfig       `koanf:"oob"`
}

// AdminConfig holds the admin HTTP endpoint configuration consumed by
// cartrustctl (peer list/rename/forget, §4.4).
type AdminConfig struct {
	// Addr is the admin HTTP listen address (e.g., ":7800").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// TransportConfig holds the GATT service/characteristic identifiers the
// pairing FSM filters advertisements against and validates at service
// discovery time (spec.md §6, "Advertisement filter").
type TransportConfig struct {
	// ServiceUUID is the 16-byte GATT service UUID advertised by an
	// associable peer (spec.md §8 example: "0000FEF3-...").
	ServiceUUID string `koanf:"service_uuid"`

	// ClientWriteUUID and ServerWriteUUID are the required characteristics
	// within ServiceUUID (spec.md §4.1).
	ClientWriteUUID string `koanf:"client_write_uuid"`
	ServerWriteUUID string `koanf:"server_write_uuid"`

	// AdvertiseDataUUID is the optional advertise-data characteristic.
	AdvertiseDataUUID string `koanf:"advertise_data_uuid"`

	// ReconnectServiceDataUUID is the service-data UUID a reconnecting
	// peer's advertisement carries the HMAC challenge under (spec.md §6:
	// "00000020-0000-1000-8000-00805f9b34fb").
	ReconnectServiceDataUUID string `koanf:"reconnect_service_data_uuid"`

	// RequestedMTU is the MTU requested at transport connect time; zero
	// means "implementation-maximum" (spec.md §4.1).
	RequestedMTU int `koanf:"requested_mtu"`
}

// SecurityConfig holds the master key protecting stored identification
// keys at rest (spec.md §4.4: "the store never sees plaintext keys").
type SecurityConfig struct {
	// MasterKeyHex is a 32-byte AES-256 key, hex-encoded, used to wrap and
	// unwrap every peer's identification key. Empty means no value was
	// provisioned; the daemon generates an ephemeral one at startup and
	// logs a warning, since a restart then forgets every wrapped key
	// (acceptable for this exercise -- spec.md §1 places platform keystore
	// integration out of scope).
	MasterKeyHex string `koanf:"master_key_hex"`
}

// OOBConfig names the out-of-band verification channel(s) this process can
// offer during association (spec.md §4.6).
type OOBConfig struct {
	// PreAssociationURI, if set, is a "PRE_ASSOCIATION" OOB URI (the format
	// oob.ParseURI accepts) carrying a pre-provisioned key exchanged with
	// the peer by some channel outside this process -- e.g. printed on the
	// head unit and scanned by the companion app during setup.
	PreAssociationURI string `koanf:"pre_association_uri"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			Addr: ":7800",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Transport: TransportConfig{
			ServiceUUID:              "0000fef3-0000-1000-8000-00805f9b34fb",
			ClientWriteUUID:          "00000100-0000-1000-8000-00805f9b34fb",
			ServerWriteUUID:          "00000101-0000-1000-8000-00805f9b34fb",
			AdvertiseDataUUID:        "00000102-0000-1000-8000-00805f9b34fb",
			ReconnectServiceDataUUID: "00000020-0000-1000-8000-00805f9b34fb",
			RequestedMTU:             0,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for cartrustd configuration.
// Variables are named CARTRUSTD_<section>_<key>, e.g., CARTRUSTD_ADMIN_ADDR.
const envPrefix = "CARTRUSTD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (CARTRUSTD_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	CARTRUSTD_ADMIN_ADDR             -> admin.addr
//	CARTRUSTD_METRICS_ADDR           -> metrics.addr
//	CARTRUSTD_METRICS_PATH           -> metrics.path
//	CARTRUSTD_LOG_LEVEL              -> log.level
//	CARTRUSTD_LOG_FORMAT             -> log.format
//	CARTRUSTD_TRANSPORT_SERVICE_UUID -> transport.service_uuid
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms CARTRUSTD_ADMIN_ADDR -> admin.addr.
// Strips the CARTRUSTD_ prefix, lowercases, and replaces the first _ with .
// so that underscores inside a key survive (transport_service_uuid ->
// transport.service_uuid).
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.addr":                             defaults.Admin.Addr,
		"metrics.addr":                           defaults.Metrics.Addr,
		"metrics.path":                           defaults.Metrics.Path,
		"log.level":                              defaults.Log.Level,
		"log.format":                             defaults.Log.Format,
		"transport.service_uuid":                 defaults.Transport.ServiceUUID,
		"transport.client_write_uuid":            defaults.Transport.ClientWriteUUID,
		"transport.server_write_uuid":            defaults.Transport.ServerWriteUUID,
		"transport.advertise_data_uuid":          defaults.Transport.AdvertiseDataUUID,
		"transport.reconnect_service_data_uuid":  defaults.Transport.ReconnectServiceDataUUID,
		"transport.requested_mtu":                defaults.Transport.RequestedMTU,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAdminAddr indicates the admin listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")

	// ErrEmptyServiceUUID indicates the transport service UUID is empty.
	ErrEmptyServiceUUID = errors.New("transport.service_uuid must not be empty")

	// ErrEmptyCharacteristicUUID indicates a required GATT characteristic
	// UUID is empty.
	ErrEmptyCharacteristicUUID = errors.New("transport.client_write_uuid and transport.server_write_uuid must not be empty")

	// ErrNegativeMTU indicates a negative requested MTU.
	ErrNegativeMTU = errors.New("transport.requested_mtu must be >= 0")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}

	if cfg.Transport.ServiceUUID == "" {
		return ErrEmptyServiceUUID
	}

	if cfg.Transport.ClientWriteUUID == "" || cfg.Transport.ServerWriteUUID == "" {
		return ErrEmptyCharacteristicUUID
	}

	if cfg.Transport.RequestedMTU < 0 {
		return ErrNegativeMTU
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
