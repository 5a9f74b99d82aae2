package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
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
		key: "service.base_url", typ: kString, env: "WAYPOINT_SERVICE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Service.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Service.BaseURL },
	},
	{
		key: "service.timeout", typ: kDuration, env: "WAYPOINT_SERVICE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Service.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Service.Timeout },
	},
	{
		key: "service.token", typ: kString, env: "WAYPOINT_SERVICE_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Service.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Service.Token },
	},
	{
		key: "poll.interval", typ: kDuration, env: "WAYPOINT_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Poll.Interval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Poll.Interval },
	},
	{
		key: "verify.settle_delay", typ: kDuration, env: "WAYPOINT_VERIFY_SETTLE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Verify.SettleDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Verify.SettleDelay },
	},
	{
		key: "verify.retry_delay", typ: kDuration, env: "WAYPOINT_VERIFY_RETRY_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Verify.RetryDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Verify.RetryDelay },
	},
	{
		key: "verify.max_attempts", typ: kInt, env: "WAYPOINT_VERIFY_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Verify.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Verify.MaxAttempts },
	},
	{
		key: "loader.retry_delay", typ: kDuration, env: "WAYPOINT_LOADER_RETRY_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Loader.RetryDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Loader.RetryDelay },
	},
	{
		key: "loader.max_attempts", typ: kInt, env: "WAYPOINT_LOADER_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Loader.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Loader.MaxAttempts },
	},
	{
		key: "storage.data_dir", typ: kString, env: "WAYPOINT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "devserver.port", typ: kInt, env: "WAYPOINT_DEVSERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.DevServer.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.DevServer.Port },
	},
	{
		key: "log.level", typ: kString, env: "WAYPOINT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseDuration accepts Go duration strings ("1.5s", "250ms"). Negative
// values are rejected.
func parseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration")
	}
	return d, nil
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
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := parseDuration(v); err == nil {
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
		case kDuration:
			if d, err := parseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
