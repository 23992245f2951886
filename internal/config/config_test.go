package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7280 {
		t.Errorf("port = %d, want 7280", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Log.Level)
	}
	if cfg.Inspector.Env != "dev" || cfg.Inspector.OverallTimeoutMS != 2000 || cfg.Inspector.TTLFloorSeconds != 3600 {
		t.Errorf("inspector defaults = %+v", cfg.Inspector)
	}
	if cfg.Fingerprint.Method != "rounded-prefix" || cfg.Fingerprint.Prefix != 32 || cfg.Fingerprint.Precision != 6 {
		t.Errorf("fingerprint defaults = %+v", cfg.Fingerprint)
	}
	if cfg.Repair.Enabled {
		t.Error("repair enabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  token: sekrit
inspector:
  env: prod
  ttl_floor_seconds: 600
providers:
  - name: postgres
    family: relational
    driver: sqlite
    dsn: file:docs.db
    table: documents
    enabled: true
  - name: redis
    family: kv
    addr: 127.0.0.1:6379
    enabled: true
    fields:
      content: body
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Token != "sekrit" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Inspector.Env != "prod" || cfg.Inspector.TTLFloorSeconds != 600 {
		t.Errorf("inspector = %+v", cfg.Inspector)
	}
	// Unset file keys keep their defaults.
	if cfg.Inspector.OverallTimeoutMS != 2000 {
		t.Errorf("overall timeout = %d, want default 2000", cfg.Inspector.OverallTimeoutMS)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("got %d providers, want 2", len(cfg.Providers))
	}
	if cfg.Providers[1].Fields["content"] != "body" {
		t.Errorf("field mapping = %v", cfg.Providers[1].Fields)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORECHECK_SERVER_PORT", "7000")
	t.Setenv("STORECHECK_API_TOKEN", "from-env")
	t.Setenv("STORECHECK_ENV", "staging")
	t.Setenv("STORECHECK_REPAIR_ENABLED", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7000 || cfg.Server.Token != "from-env" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Inspector.Env != "staging" {
		t.Errorf("env = %q, want staging", cfg.Inspector.Env)
	}
	if !cfg.Repair.Enabled {
		t.Error("repair not enabled by env override")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"unknown fingerprint method", func(c *Config) { c.Fingerprint.Method = "md5" }},
		{"provider without name", func(c *Config) {
			c.Providers = []Provider{{Family: "kv", Addr: "x"}}
		}},
		{"duplicate provider name", func(c *Config) {
			c.Providers = []Provider{
				{Name: "a", Family: "kv", Addr: "x"},
				{Name: "a", Family: "kv", Addr: "y"},
			}
		}},
		{"relational without table", func(c *Config) {
			c.Providers = []Provider{{Name: "pg", Family: "relational", Driver: "sqlite", DSN: "x"}}
		}},
		{"relational bad driver", func(c *Config) {
			c.Providers = []Provider{{Name: "pg", Family: "relational", Driver: "oracle", DSN: "x", Table: "t"}}
		}},
		{"kv without addr", func(c *Config) {
			c.Providers = []Provider{{Name: "redis", Family: "kv"}}
		}},
		{"vector without collection", func(c *Config) {
			c.Providers = []Provider{{Name: "qdrant", Family: "vector", BaseURL: "http://x"}}
		}},
		{"unknown family", func(c *Config) {
			c.Providers = []Provider{{Name: "x", Family: "graph"}}
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := defaults()
			c.mut(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}

func TestActiveProviders(t *testing.T) {
	cfg := defaults()
	cfg.Inspector.Env = "prod"
	cfg.Providers = []Provider{
		{Name: "everywhere", Enabled: true},
		{Name: "prod-only", Enabled: true, Envs: []string{"prod"}},
		{Name: "dev-only", Enabled: true, Envs: []string{"dev"}},
		{Name: "disabled", Enabled: false},
	}

	active := cfg.ActiveProviders()
	if len(active) != 2 {
		t.Fatalf("got %d active providers, want 2", len(active))
	}
	if active[0].Name != "everywhere" || active[1].Name != "prod-only" {
		t.Errorf("active = %v", active)
	}
}
