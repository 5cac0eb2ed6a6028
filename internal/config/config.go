// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads gatekeeper configuration from a YAML file and
// command-line flags.
package config

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/logging"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// DatabaseURLEnv is consulted when no database URL is configured.
const DatabaseURLEnv = "DATABASE_URL"

// Config is the full gatekeeper configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" json:"http,omitempty"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics,omitempty"`
	Log      LogConfig      `koanf:"log" json:"log,omitempty"`
	Store    StoreConfig    `koanf:"store" json:"store,omitempty"`
	Database DatabaseConfig `koanf:"database" json:"database,omitempty"`
	Hasher   HasherConfig   `koanf:"hasher" json:"hasher,omitempty"`
	Session  SessionConfig  `koanf:"session" json:"session,omitempty"`
}

// HTTPConfig configures the public HTTP listener.
type HTTPConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" jsonschema:"description=Listen address for the HTTP API,example=:8080"`
}

// MetricsConfig configures the metrics and health listener.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" jsonschema:"description=Listen address for /metrics and health probes; empty disables it"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// StoreConfig selects the user store.
type StoreConfig struct {
	Backend string `koanf:"backend" json:"backend,omitempty" jsonschema:"enum=postgres,enum=memory"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL             string        `koanf:"url" json:"url,omitempty" jsonschema:"description=PostgreSQL URL; falls back to $DATABASE_URL"`
	MaxConns        int32         `koanf:"max_conns" json:"max_conns,omitempty" jsonschema:"minimum=1"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" json:"connect_timeout,omitempty" jsonschema:"type=string,example=5s"`
	ConnectAttempts uint64        `koanf:"connect_attempts" json:"connect_attempts,omitempty" jsonschema:"minimum=1"`
}

// HasherConfig sets the argon2id cost for new password hashes.
type HasherConfig struct {
	Time      uint32 `koanf:"time" json:"time,omitempty" jsonschema:"minimum=1,maximum=64"`
	MemoryKiB uint32 `koanf:"memory_kib" json:"memory_kib,omitempty" jsonschema:"minimum=8,maximum=1048576"`
	Threads   uint8  `koanf:"threads" json:"threads,omitempty" jsonschema:"minimum=1,maximum=255"`
}

// SessionConfig configures the session cookie.
type SessionConfig struct {
	CookieName   string `koanf:"cookie_name" json:"cookie_name,omitempty"`
	CookieSecure bool   `koanf:"cookie_secure" json:"cookie_secure,omitempty"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: ":8080"},
		Metrics: MetricsConfig{Addr: ":9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Store:   StoreConfig{Backend: BackendPostgres},
		Database: DatabaseConfig{
			MaxConns:        10,
			ConnectTimeout:  5 * time.Second,
			ConnectAttempts: 5,
		},
		Hasher: HasherConfig{
			Time:      1,
			MemoryKiB: 64 * 1024,
			Threads:   4,
		},
		Session: SessionConfig{CookieName: "session_id"},
	}
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"http-addr":                 "http.addr",
	"metrics-addr":              "metrics.addr",
	"log-format":                "log.format",
	"log-level":                 "log.level",
	"store":                     "store.backend",
	"database-url":              "database.url",
	"database-max-conns":        "database.max_conns",
	"database-connect-timeout":  "database.connect_timeout",
	"database-connect-attempts": "database.connect_attempts",
	"hasher-time":               "hasher.time",
	"hasher-memory-kib":         "hasher.memory_kib",
	"hasher-threads":            "hasher.threads",
	"session-cookie-name":       "session.cookie_name",
	"session-cookie-secure":     "session.cookie_secure",
}

// RegisterFlags adds a flag for every config key to flags. Flag defaults come
// from Default and only apply to keys the config file leaves unset.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("http-addr", d.HTTP.Addr, "HTTP API listen address")
	flags.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty to disable)")
	flags.String("log-format", d.Log.Format, "log format (json or text)")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	flags.String("store", d.Store.Backend, "user store backend (postgres or memory)")
	flags.String("database-url", "", "PostgreSQL URL (default $"+DatabaseURLEnv+")")
	flags.Int32("database-max-conns", d.Database.MaxConns, "maximum pooled connections")
	flags.Duration("database-connect-timeout", d.Database.ConnectTimeout, "timeout for each connection attempt")
	flags.Uint64("database-connect-attempts", d.Database.ConnectAttempts, "connection attempts before giving up")
	flags.Uint32("hasher-time", d.Hasher.Time, "argon2id iterations")
	flags.Uint32("hasher-memory-kib", d.Hasher.MemoryKiB, "argon2id memory in KiB")
	flags.Uint8("hasher-threads", d.Hasher.Threads, "argon2id parallelism")
	flags.String("session-cookie-name", d.Session.CookieName, "session cookie name")
	flags.Bool("session-cookie-secure", d.Session.CookieSecure, "mark the session cookie Secure")
}

// Load reads path (if it exists) and then flags. A missing file
// is not an error unless required is set. An empty database URL is filled
// from $DATABASE_URL. The result is validated.
func Load(path string, required bool, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if required || !errors.Is(err, fs.ErrNotExist) {
				return Config{}, oops.Code("CONFIG_LOAD_FAILED").
					With("operation", "read config file").
					With("path", path).
					Wrap(err)
			}
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "read flags").
				Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_DECODE_FAILED").
			With("operation", "decode config").
			Wrap(err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv(DatabaseURLEnv)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every value is usable.
func (c Config) Validate() error {
	invalid := func(key string, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
		return invalid("http.addr", "http.addr %q is not a host:port address", c.HTTP.Addr)
	}
	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			return invalid("metrics.addr", "metrics.addr %q is not a host:port address", c.Metrics.Addr)
		}
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be json or text, got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "log.level %q is not a known level", c.Log.Level)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "database.url (or $%s) is required for the postgres store", DatabaseURLEnv)
		}
	default:
		return invalid("store.backend", "store.backend must be postgres or memory, got %q", c.Store.Backend)
	}

	if c.Database.MaxConns < 1 {
		return invalid("database.max_conns", "database.max_conns must be at least 1")
	}
	if c.Database.ConnectTimeout <= 0 {
		return invalid("database.connect_timeout", "database.connect_timeout must be positive")
	}
	if c.Database.ConnectAttempts < 1 {
		return invalid("database.connect_attempts", "database.connect_attempts must be at least 1")
	}
	if c.Hasher.Time < 1 || c.Hasher.Threads < 1 {
		return invalid("hasher", "hasher.time and hasher.threads must be at least 1")
	}
	if c.Hasher.Time > auth.MaxArgon2Time {
		return invalid("hasher.time", "hasher.time must be at most %d", auth.MaxArgon2Time)
	}
	if c.Hasher.MemoryKiB < 8*uint32(c.Hasher.Threads) {
		return invalid("hasher.memory_kib", "hasher.memory_kib must be at least 8 KiB per thread")
	}
	if c.Hasher.MemoryKiB > auth.MaxArgon2MemoryKiB {
		return invalid("hasher.memory_kib", "hasher.memory_kib must be at most %d", auth.MaxArgon2MemoryKiB)
	}
	if c.Session.CookieName == "" {
		return invalid("session.cookie_name", "session.cookie_name cannot be empty")
	}
	return nil
}
