package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
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
		key: "server.port", typ: kInt, env: "STEPUP_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.backend", typ: kString, env: "STEPUP_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "STEPUP_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "redis.addr", typ: kString, env: "STEPUP_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Redis.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.Addr },
	},
	{
		key: "redis.password", typ: kString, env: "STEPUP_REDIS_PASSWORD",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Redis.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.Password },
	},
	{
		key: "redis.db", typ: kInt, env: "STEPUP_REDIS_DB",
		apply:   func(cfg *Config, v any) { cfg.Redis.DB = v.(int) },
		extract: func(cfg Config) any { return cfg.Redis.DB },
	},
	{
		key: "elicitation.default_timeout_seconds", typ: kInt, env: "STEPUP_ELICITATION_DEFAULT_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Elicitation.DefaultTimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Elicitation.DefaultTimeoutSeconds },
	},
	{
		key: "elicitation.supervisor_timeout_seconds", typ: kInt, env: "STEPUP_ELICITATION_SUPERVISOR_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Elicitation.SupervisorTimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Elicitation.SupervisorTimeoutSeconds },
	},
	{
		key: "elicitation.ttl_buffer_seconds", typ: kInt, env: "STEPUP_ELICITATION_TTL_BUFFER_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Elicitation.TTLBufferSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Elicitation.TTLBufferSeconds },
	},
	{
		key: "elicitation.queue_ttl_seconds", typ: kInt, env: "STEPUP_ELICITATION_QUEUE_TTL_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Elicitation.QueueTTLSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Elicitation.QueueTTLSeconds },
	},
	{
		key: "elicitation.sweep_interval", typ: kString, env: "STEPUP_ELICITATION_SWEEP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Elicitation.SweepInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Elicitation.SweepInterval },
	},
	{
		key: "auth.jwt_secret", typ: kString, env: "STEPUP_AUTH_JWT_SECRET",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Auth.JWTSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.JWTSecret },
	},
	{
		key: "auth.jwt_issuer", typ: kString, env: "STEPUP_AUTH_JWT_ISSUER",
		apply:   func(cfg *Config, v any) { cfg.Auth.JWTIssuer = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.JWTIssuer },
	},
	{
		key: "resume.mode", typ: kString, env: "STEPUP_RESUME_MODE",
		apply:   func(cfg *Config, v any) { cfg.Resume.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Resume.Mode },
	},
	{
		key: "resume.base_url", typ: kString, env: "STEPUP_RESUME_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Resume.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Resume.BaseURL },
	},
	{
		key: "resume.timeout", typ: kString, env: "STEPUP_RESUME_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Resume.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Resume.Timeout },
	},
	{
		key: "banking.demo_otp", typ: kString, env: "STEPUP_BANKING_DEMO_OTP",
		apply:   func(cfg *Config, v any) { cfg.Banking.DemoOTP = v.(string) },
		extract: func(cfg Config) any { return cfg.Banking.DemoOTP },
	},
	{
		key: "log.level", typ: kString, env: "STEPUP_LOG_LEVEL",
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
		}
	}
}
