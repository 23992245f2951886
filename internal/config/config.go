// Package config loads and validates the inspector's configuration: the
// server surface, the fingerprint policy, and the set of store providers.
// Configuration is read once at startup and treated as immutable afterwards;
// every validation failure here is fatal, so a malformed provider entry can
// never surface mid-request.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Inspector   InspectorConfig   `yaml:"inspector"`
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	Repair      RepairConfig      `yaml:"repair"`
	Providers   []Provider        `yaml:"providers"`
}

type ServerConfig struct {
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type InspectorConfig struct {
	// Env selects which provider entries are active (dev/staging/prod).
	// It is a filter over configuration, never a code branch.
	Env              string   `yaml:"env"`
	OverallTimeoutMS int      `yaml:"overall_timeout_ms"`
	TTLFloorSeconds  int64    `yaml:"ttl_floor_seconds"`
	CompareFields    []string `yaml:"compare_fields"`
	BatchConcurrency int      `yaml:"batch_concurrency"`
}

// FingerprintConfig pins the embedding fingerprint policy for a deployment.
// Changing any of these invalidates previously recorded fingerprints.
type FingerprintConfig struct {
	Method    string `yaml:"method"` // "rounded-prefix" or "raw-bytes"
	Prefix    int    `yaml:"prefix"`
	Precision int    `yaml:"precision"`
}

type RepairConfig struct {
	Enabled bool `yaml:"enabled"`
}

// FeatureFlags mark a provider's role during store migrations. The inspector
// itself only reads; the flags are carried so operators can see at a glance
// which stage of a dual-write migration each provider is in.
type FeatureFlags struct {
	Read       bool `yaml:"read"`
	Write      bool `yaml:"write"`
	DualWrite  bool `yaml:"dual_write"`
	ShadowRead bool `yaml:"shadow_read"`
}

// Provider is one store adapter entry. Family selects the adapter; Driver
// narrows it where a family has more than one implementation (relational:
// sqlite/mysql, vector: qdrant/sqlite).
type Provider struct {
	Name      string   `yaml:"name"`
	Family    string   `yaml:"family"` // relational, kv, vector
	Enabled   bool     `yaml:"enabled"`
	Envs      []string `yaml:"envs"` // empty means active in every env
	TimeoutMS int      `yaml:"timeout_ms"`

	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	Table     string `yaml:"table"`
	KeyColumn string `yaml:"key_column"`

	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`

	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	Collection   string `yaml:"collection"`
	ModelField   string `yaml:"model_field"`
	VectorColumn string `yaml:"vector_column"`
	ModelColumn  string `yaml:"model_column"`

	// Fields overrides the canonical field mapping for this store
	// (canonical name → payload key; empty value drops the field).
	Fields map[string]string `yaml:"fields"`

	Flags FeatureFlags `yaml:"flags"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: 7280},
		Log:    LogConfig{Level: "info"},
		Inspector: InspectorConfig{
			Env:              "dev",
			OverallTimeoutMS: 2000,
			TTLFloorSeconds:  3600,
			BatchConcurrency: 4,
		},
		Fingerprint: FingerprintConfig{
			Method:    "rounded-prefix",
			Prefix:    32,
			Precision: 6,
		},
	}
}

// DefaultPath returns the platform config file location.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "storecheck", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "storecheck", "config.yaml")
}

// Load reads the config file at path (or the default location when path is
// empty), applies STORECHECK_* environment overrides, and validates. A
// missing file is fine when env vars and defaults cover everything.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults + env only
	default:
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ActiveProviders filters the provider list down to entries enabled for the
// configured environment.
func (c Config) ActiveProviders() []Provider {
	var out []Provider
	for _, p := range c.Providers {
		if !p.Enabled {
			continue
		}
		if len(p.Envs) > 0 && !containsString(p.Envs, c.Inspector.Env) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Validate checks everything that must hold before the process serves a
// single request.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Fingerprint.Method {
	case "", "rounded-prefix", "raw-bytes":
	default:
		return fmt.Errorf("unknown fingerprint.method %q", c.Fingerprint.Method)
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true

		switch p.Family {
		case "relational":
			if p.Driver != "sqlite" && p.Driver != "mysql" {
				return fmt.Errorf("provider %s: relational driver must be sqlite or mysql, got %q", p.Name, p.Driver)
			}
			if p.DSN == "" {
				return fmt.Errorf("provider %s: dsn is required", p.Name)
			}
			if p.Table == "" {
				return fmt.Errorf("provider %s: table is required", p.Name)
			}
		case "kv":
			if p.Addr == "" {
				return fmt.Errorf("provider %s: addr is required", p.Name)
			}
		case "vector":
			switch p.Driver {
			case "", "qdrant":
				if p.BaseURL == "" || p.Collection == "" {
					return fmt.Errorf("provider %s: base_url and collection are required", p.Name)
				}
			case "sqlite":
				if p.DSN == "" {
					return fmt.Errorf("provider %s: dsn is required", p.Name)
				}
			default:
				return fmt.Errorf("provider %s: vector driver must be qdrant or sqlite, got %q", p.Name, p.Driver)
			}
		default:
			return fmt.Errorf("provider %s: unknown family %q", p.Name, p.Family)
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
