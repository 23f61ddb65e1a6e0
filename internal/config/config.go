package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	Redis       RedisConfig
	Elicitation ElicitationConfig
	Auth        AuthConfig
	Resume      ResumeConfig
	Banking     BankingConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	// Backend is "sqlite" or "redis".
	Backend string
	DataDir string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ElicitationConfig struct {
	DefaultTimeoutSeconds    int
	SupervisorTimeoutSeconds int
	TTLBufferSeconds         int
	QueueTTLSeconds          int
	SweepInterval            string
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

type ResumeConfig struct {
	// Mode is "local" (in-process banking operations) or "http".
	Mode    string
	BaseURL string
	Timeout string
}

type BankingConfig struct {
	// DemoOTP, when set, is issued instead of a random code.
	DemoOTP string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			DataDir: defaultDataDir(),
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Elicitation: ElicitationConfig{
			DefaultTimeoutSeconds:    300,
			SupervisorTimeoutSeconds: 600,
			TTLBufferSeconds:         60,
			QueueTTLSeconds:          3600,
			SweepInterval:            "30s",
		},
		Auth: AuthConfig{
			JWTIssuer: "orchestrator",
		},
		Resume: ResumeConfig{
			Mode:    "local",
			Timeout: "30s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/stepup/config.json, then applies STEPUP_* environment
// overrides. Secrets are never read from the config file; they come from the
// environment or from $XDG_DATA_HOME/stepup/secrets.json.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), secretsFile{path: secretsFilePath()})
}

// secretStore abstracts secret lookup for testing.
type secretStore interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret || s.extract(cfg) != "" {
			continue
		}
		if v, err := secrets.Get("stepup", s.key); err == nil && v != "" {
			s.apply(&cfg, strings.TrimSpace(v))
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("missing required config: JWT secret. " +
			"Set it via environment variable STEPUP_AUTH_JWT_SECRET")
	}
	switch c.Storage.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("storage.backend must be sqlite or redis, got %q", c.Storage.Backend)
	}
	switch c.Resume.Mode {
	case "local":
	case "http":
		if c.Resume.BaseURL == "" {
			return errors.New("resume.base_url is required when resume.mode is http")
		}
	default:
		return fmt.Errorf("resume.mode must be local or http, got %q", c.Resume.Mode)
	}
	if _, err := time.ParseDuration(c.Elicitation.SweepInterval); err != nil {
		return fmt.Errorf("elicitation.sweep_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Resume.Timeout); err != nil {
		return fmt.Errorf("resume.timeout: %w", err)
	}
	if c.Elicitation.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("elicitation.default_timeout_seconds must be positive, got %d", c.Elicitation.DefaultTimeoutSeconds)
	}
	return nil
}

func (c ElicitationConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutSeconds) * time.Second
}

func (c ElicitationConfig) SupervisorTimeout() time.Duration {
	return time.Duration(c.SupervisorTimeoutSeconds) * time.Second
}

func (c ElicitationConfig) TTLBuffer() time.Duration {
	return time.Duration(c.TTLBufferSeconds) * time.Second
}

func (c ElicitationConfig) QueueTTL() time.Duration {
	return time.Duration(c.QueueTTLSeconds) * time.Second
}

// SweepEvery returns the parsed sweep interval. Load has already validated it.
func (c ElicitationConfig) SweepEvery() time.Duration {
	d, _ := time.ParseDuration(c.SweepInterval)
	return d
}

func (c ResumeConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}
