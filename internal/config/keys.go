package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	keychainService = "rankd"
	envSyncBaseURL  = "RANKD_SYNC_BASE_URL"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "RANKD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "RANKD_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "sync.base_url", typ: kString, env: envSyncBaseURL,
		apply:   func(cfg *Config, v any) { cfg.Sync.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Sync.BaseURL },
	},
	{
		key: "sync.token", typ: kString, env: "RANKD_SYNC_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Sync.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Sync.Token },
	},
	{
		key: "sync.server_interval", typ: kDuration, env: "RANKD_SYNC_SERVER_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Sync.ServerInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Sync.ServerInterval },
	},
	{
		key: "sync.local_debounce", typ: kDuration, env: "RANKD_SYNC_LOCAL_DEBOUNCE",
		apply:   func(cfg *Config, v any) { cfg.Sync.LocalDebounce = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Sync.LocalDebounce },
	},
	{
		key: "rating.enabled", typ: kBool, env: "RANKD_RATING_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Rating.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Rating.Enabled },
	},
	{
		key: "rating.decay_constant", typ: kFloat, env: "RANKD_RATING_DECAY_CONSTANT",
		apply:   func(cfg *Config, v any) { cfg.Rating.DecayConstant = v.(float64) },
		extract: func(cfg Config) any { return cfg.Rating.DecayConstant },
	},
	{
		key: "rating.max_results", typ: kInt, env: "RANKD_RATING_MAX_RESULTS",
		apply:   func(cfg *Config, v any) { cfg.Rating.MaxResults = v.(int) },
		extract: func(cfg Config) any { return cfg.Rating.MaxResults },
	},
	{
		key: "storage.data_dir", typ: kString, env: "RANKD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "RANKD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
