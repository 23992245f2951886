package config

import (
	"os"
	"strconv"
)

// keySpec describes one scalar setting that an environment variable can
// override. Provider entries are file-only: their shape does not flatten
// into env vars sensibly.
type keySpec struct {
	env   string
	apply func(cfg *Config, v string)
}

var specs = []keySpec{
	{
		env: "STORECHECK_SERVER_PORT",
		apply: func(cfg *Config, v string) {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.Server.Port = n
			}
		},
	},
	{
		env:   "STORECHECK_API_TOKEN",
		apply: func(cfg *Config, v string) { cfg.Server.Token = v },
	},
	{
		env:   "STORECHECK_LOG_LEVEL",
		apply: func(cfg *Config, v string) { cfg.Log.Level = v },
	},
	{
		env:   "STORECHECK_ENV",
		apply: func(cfg *Config, v string) { cfg.Inspector.Env = v },
	},
	{
		env: "STORECHECK_OVERALL_TIMEOUT_MS",
		apply: func(cfg *Config, v string) {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.Inspector.OverallTimeoutMS = n
			}
		},
	},
	{
		env: "STORECHECK_TTL_FLOOR_SECONDS",
		apply: func(cfg *Config, v string) {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				cfg.Inspector.TTLFloorSeconds = n
			}
		},
	},
	{
		env:   "STORECHECK_FINGERPRINT_METHOD",
		apply: func(cfg *Config, v string) { cfg.Fingerprint.Method = v },
	},
	{
		env: "STORECHECK_REPAIR_ENABLED",
		apply: func(cfg *Config, v string) {
			if b, err := strconv.ParseBool(v); err == nil {
				cfg.Repair.Enabled = b
			}
		},
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if v := os.Getenv(s.env); v != "" {
			s.apply(cfg, v)
		}
	}
}
