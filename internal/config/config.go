// Package config loads Prism Cache's configuration with the same
// layering hyperengineering-engram's internal/config uses: built-in
// defaults, then an optional file, then environment variable
// overrides, then validation. Engram parses YAML; the documented
// external interface here is TOML, so this package is built on
// github.com/BurntSushi/toml instead — the only TOML library visible
// anywhere in the retrieved corpus.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure. It is read-only after
// Load returns and safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Cache    CacheConfig    `toml:"cache"`
	Logging  LoggingConfig  `toml:"logging"`
	Database DatabaseConfig `toml:"database"`
}

// ServerConfig contains the RESP listener's settings. BindAddress
// defaults to 127.0.0.1:6380; omitting it is not an error, and validate
// rejects only an empty value.
type ServerConfig struct {
	BindAddress string `toml:"bind_address"`

	// ShutdownTimeout and MetricsAddress are additive operational knobs
	// beyond the documented external interface: a graceful-shutdown
	// deadline and an optional Prometheus endpoint. Neither conflicts
	// with or shadows a documented key, and both default such that
	// omitting them entirely reproduces the documented behavior.
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	MetricsAddress  string   `toml:"metrics_address"`
}

// CacheConfig contains the in-process cache's settings. MaxEntries and
// TTLSeconds default to 320000 and 30; omitting them is not an error,
// and validate rejects only non-positive values.
type CacheConfig struct {
	MaxEntries int `toml:"max_entries"`
	TTLSeconds int `toml:"ttl_seconds"`

	// FetchTimeoutSeconds is additive: the per-request adapter-fetch
	// deadline backing the cache's single-flight fills. It is optional
	// and defaults to 5s when unset or non-positive.
	FetchTimeoutSeconds int `toml:"fetch_timeout_seconds"`
}

// LoggingConfig contains zerolog's settings: logging.level, one of
// trace, debug, info, warn or error.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DatabaseConfig holds the provider list.
type DatabaseConfig struct {
	Providers []ProviderConfig `toml:"providers"`
}

// ProviderConfig describes one entry in database.providers[]. Provider
// selects which Settings keys apply:
//
//	"Mock"     -> settings.sample_size
//	"Postgres" -> settings.{user,password,host,port,dbname,fields}
//	"AzDelta"  -> settings.{delta_table_name,delta_table_path,delta_record_query}
type ProviderConfig struct {
	Name     string            `toml:"name"`
	Provider string            `toml:"provider"`
	Settings map[string]string `toml:"settings"`
}

// Duration wraps time.Duration so it can be written as a plain string
// ("30s", "5m") in TOML instead of an integer nanosecond count.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler, which
// BurntSushi/toml uses for any scalar TOML value assigned to a type
// that satisfies it.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// envPrefix namespaces every environment override.
const envPrefix = "PRISM_CACHE__"

// Load loads configuration with precedence: defaults -> TOML file (if
// path is non-empty and exists) -> environment overrides -> validate.
func Load(path string) (*Config, error) {
	cfg := newDefaults()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:     "127.0.0.1:6380",
			ShutdownTimeout: Duration(5 * time.Second),
			MetricsAddress:  "127.0.0.1:9090",
		},
		Cache: CacheConfig{
			MaxEntries:          320_000,
			TTLSeconds:          30,
			FetchTimeoutSeconds: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultFetchTimeout is used when cache.fetch_timeout_seconds is
// unset or non-positive (spec §5: "configurable, default 5 s").
const DefaultFetchTimeout = 5 * time.Second

// FetchTimeout returns the configured per-request adapter-fetch
// timeout, falling back to DefaultFetchTimeout.
func (c *Config) FetchTimeout() time.Duration {
	if c.Cache.FetchTimeoutSeconds <= 0 {
		return DefaultFetchTimeout
	}
	return time.Duration(c.Cache.FetchTimeoutSeconds) * time.Second
}

// loadFile loads configuration from a TOML file. A missing file is not
// an error: the caller only passes a path it expects to exist, but a
// default config path that simply hasn't been created yet should not
// prevent startup.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies PRISM_CACHE__-prefixed overrides to the
// handful of scalar settings operators most commonly need to change
// per-deployment without editing the file. Double underscores mark
// nesting, e.g. PRISM_CACHE__SERVER__BIND_ADDRESS.
func applyEnvOverrides(cfg *Config) {
	if v := lookupEnv("SERVER__BIND_ADDRESS"); v != "" {
		cfg.Server.BindAddress = v
	}
	if v := lookupEnv("SERVER__METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := lookupEnv("SERVER__SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}
	if v := lookupEnv("CACHE__MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxEntries = n
		}
	}
	if v := lookupEnv("CACHE__TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.TTLSeconds = n
		}
	}
	if v := lookupEnv("CACHE__FETCH_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.FetchTimeoutSeconds = n
		}
	}
	if v := lookupEnv("LOGGING__LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func lookupEnv(suffix string) string {
	return os.Getenv(envPrefix + suffix)
}

// validProviderKinds are the three closed-set adapter kinds, keyed by
// their exact TOML provider string.
var validProviderKinds = map[string]struct{}{
	"Mock":     {},
	"Postgres": {},
	"AzDelta":  {},
}

// validate checks that the configuration is internally consistent
// before anything downstream tries to use it.
func (c *Config) validate() error {
	if c.Server.BindAddress == "" {
		return errors.New("config: server.bind_address must not be empty")
	}
	if c.Cache.MaxEntries <= 0 {
		return errors.New("config: cache.max_entries must be positive")
	}
	if c.Cache.TTLSeconds <= 0 {
		return errors.New("config: cache.ttl_seconds must be positive")
	}

	seen := make(map[string]struct{}, len(c.Database.Providers))
	for _, p := range c.Database.Providers {
		if p.Name == "" {
			return errors.New("config: every database provider needs a name")
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("config: duplicate provider name %q", p.Name)
		}
		seen[p.Name] = struct{}{}

		if _, ok := validProviderKinds[p.Provider]; !ok {
			return fmt.Errorf("config: provider %q: unknown provider kind %q (want Mock, Postgres, or AzDelta)", p.Name, p.Provider)
		}

		switch p.Provider {
		case "Postgres":
			for _, key := range []string{"user", "host", "port", "dbname", "fields"} {
				if p.Settings[key] == "" {
					return fmt.Errorf("config: provider %q: Postgres settings need %q", p.Name, key)
				}
			}
		case "AzDelta":
			for _, key := range []string{"delta_table_name", "delta_table_path", "delta_record_query"} {
				if p.Settings[key] == "" {
					return fmt.Errorf("config: provider %q: AzDelta settings need %q", p.Name, key)
				}
			}
		}
	}
	return nil
}
