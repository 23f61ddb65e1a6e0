package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockSecrets is a test double for the secret store.
type mockSecrets struct {
	values map[string]string
}

func (m mockSecrets) Get(service, account string) (string, error) {
	v, ok := m.values[account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STEPUP_AUTH_JWT_SECRET", "test-secret")

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want localhost:6379", cfg.Redis.Addr)
	}
	if got := cfg.Elicitation.DefaultTimeout(); got != 5*time.Minute {
		t.Errorf("DefaultTimeout = %v, want 5m", got)
	}
	if got := cfg.Elicitation.SupervisorTimeout(); got != 10*time.Minute {
		t.Errorf("SupervisorTimeout = %v, want 10m", got)
	}
	if got := cfg.Elicitation.TTLBuffer(); got != time.Minute {
		t.Errorf("TTLBuffer = %v, want 1m", got)
	}
	if got := cfg.Elicitation.QueueTTL(); got != time.Hour {
		t.Errorf("QueueTTL = %v, want 1h", got)
	}
	if got := cfg.Elicitation.SweepEvery(); got != 30*time.Second {
		t.Errorf("SweepEvery = %v, want 30s", got)
	}
	if cfg.Auth.JWTIssuer != "orchestrator" {
		t.Errorf("Auth.JWTIssuer = %q, want orchestrator", cfg.Auth.JWTIssuer)
	}
	if cfg.Resume.Mode != "local" {
		t.Errorf("Resume.Mode = %q, want local", cfg.Resume.Mode)
	}
	if got := cfg.Resume.TimeoutDuration(); got != 30*time.Second {
		t.Errorf("Resume timeout = %v, want 30s", got)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

// TestFileValues verifies that values are read from the JSON file.
func TestFileValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("STEPUP_AUTH_JWT_SECRET", "test-secret")

	b := writeTempConfig(t, `{
  "server.port": 9100,
  "storage.backend": "redis",
  "redis.addr": "cache:6380",
  "redis.db": 3,
  "elicitation.default_timeout_seconds": 120,
  "elicitation.sweep_interval": "5s",
  "resume.mode": "http",
  "resume.base_url": "http://orchestrator:8080",
  "log.level": "debug"
}`)

	cfg, err := loadWith(b, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "redis" {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Redis.Addr != "cache:6380" || cfg.Redis.DB != 3 {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if got := cfg.Elicitation.DefaultTimeout(); got != 2*time.Minute {
		t.Errorf("DefaultTimeout = %v, want 2m", got)
	}
	if got := cfg.Elicitation.SweepEvery(); got != 5*time.Second {
		t.Errorf("SweepEvery = %v, want 5s", got)
	}
	if cfg.Resume.BaseURL != "http://orchestrator:8080" {
		t.Errorf("Resume.BaseURL = %q", cfg.Resume.BaseURL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("STEPUP_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("STEPUP_SERVER_PORT", "7000")
	t.Setenv("STEPUP_REDIS_ADDR", "env-redis:6379")

	cfg, err := loadWith(writeTempConfig(t, `{"server.port": 9100, "redis.addr": "file:6379"}`), mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "env-redis:6379" {
		t.Errorf("Redis.Addr = %q, want env-redis:6379", cfg.Redis.Addr)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("JWTSecret = %q, want env-secret", cfg.Auth.JWTSecret)
	}
}

// TestBadEnvIntKeepsDefault verifies that an unparseable integer is ignored.
func TestBadEnvIntKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("STEPUP_AUTH_JWT_SECRET", "s")
	t.Setenv("STEPUP_SERVER_PORT", "eighty")

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
}

// TestSecretsIgnoredInFile verifies secrets are never read from config.json.
func TestSecretsIgnoredInFile(t *testing.T) {
	clearEnv(t)

	_, err := loadWith(writeTempConfig(t, `{"auth.jwt_secret": "from-file"}`), mockSecrets{})
	if err == nil {
		t.Fatal("expected error: JWT secret must not come from the config file")
	}
}

// TestMissingRequiredField verifies a clear error when the JWT secret is missing everywhere.
func TestMissingRequiredField(t *testing.T) {
	clearEnv(t)

	_, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{})
	if err == nil {
		t.Fatal("expected error for missing JWT secret, got nil")
	}

	want := "missing required config"
	if got := err.Error(); !strings.Contains(got, want) {
		t.Errorf("error = %q, want it to contain %q", got, want)
	}
}

// TestSecretsFallback verifies the secrets store is consulted when no secret is in env.
func TestSecretsFallback(t *testing.T) {
	clearEnv(t)

	sec := mockSecrets{values: map[string]string{
		"auth.jwt_secret": "stored-secret\n",
		"redis.password":  "hunter2",
	}}
	cfg, err := loadWith(writeTempConfig(t, `{}`), sec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Auth.JWTSecret != "stored-secret" {
		t.Errorf("JWTSecret = %q, want stored-secret", cfg.Auth.JWTSecret)
	}
	if cfg.Redis.Password != "hunter2" {
		t.Errorf("Redis.Password = %q, want hunter2", cfg.Redis.Password)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{"bad backend", `{"storage.backend": "postgres"}`, "storage.backend"},
		{"bad mode", `{"resume.mode": "grpc"}`, "resume.mode"},
		{"http without url", `{"resume.mode": "http"}`, "resume.base_url"},
		{"bad interval", `{"elicitation.sweep_interval": "often"}`, "sweep_interval"},
		{"bad timeout", `{"resume.timeout": "soon"}`, "resume.timeout"},
		{"zero default timeout", `{"elicitation.default_timeout_seconds": 0}`, "default_timeout_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("STEPUP_AUTH_JWT_SECRET", "s")

			_, err := loadWith(writeTempConfig(t, tt.file), mockSecrets{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestBadFileIntIsError(t *testing.T) {
	clearEnv(t)
	t.Setenv("STEPUP_AUTH_JWT_SECRET", "s")

	_, err := loadWith(writeTempConfig(t, `{"server.port": 80.5}`), mockSecrets{})
	if err == nil {
		t.Fatal("expected error for non-integer port")
	}
}

func TestSetKeyAndShowAll(t *testing.T) {
	dir := t.TempDir()
	b := newFileBackend(filepath.Join(dir, "config.json"))
	sec := secretsFile{path: filepath.Join(dir, "secrets.json")}

	if err := setKey(b, sec, "server.port", "9200"); err != nil {
		t.Fatalf("setKey port: %v", err)
	}
	if err := setKey(b, sec, "server.port", "not-a-number"); err == nil {
		t.Error("expected error for invalid integer")
	}
	if err := setKey(b, sec, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := setKey(b, sec, "auth.jwt_secret", "written-secret"); err != nil {
		t.Fatalf("setKey secret: %v", err)
	}

	// Reload from disk.
	reloaded := newFileBackend(b.path)
	if v, ok, _ := reloaded.GetInt("server.port"); !ok || v != 9200 {
		t.Errorf("server.port = %d (ok=%v), want 9200", v, ok)
	}
	if _, ok, _ := reloaded.GetString("auth.jwt_secret"); ok {
		t.Error("secret must not be written to config.json")
	}
	if v, err := sec.Get("stepup", "auth.jwt_secret"); err != nil || v != "written-secret" {
		t.Errorf("secret = %q, %v", v, err)
	}
	info, err := os.Stat(sec.path)
	if err != nil {
		t.Fatalf("stat secrets file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("secrets file mode = %v, want 0600", info.Mode().Perm())
	}

	if err := unsetKey(reloaded, "server.port"); err != nil {
		t.Fatalf("unsetKey: %v", err)
	}
	if err := unsetKey(reloaded, "no.such.key"); err == nil {
		t.Error("expected error unsetting unknown key")
	}
	if err := setKey(reloaded, sec, "server.port", "9200"); err != nil {
		t.Fatalf("setKey port: %v", err)
	}

	clearEnv(t)
	cfg, err := loadWith(reloaded, sec)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	for _, k := range ShowAll(cfg) {
		if k.Key == "auth.jwt_secret" && k.Value != "********" {
			t.Errorf("secret shown as %q", k.Value)
		}
		if k.Key == "server.port" && k.Value != "9200" {
			t.Errorf("server.port shown as %q", k.Value)
		}
	}
	if len(ValidKeys()) != len(specs) {
		t.Errorf("ValidKeys() = %d keys, want %d", len(ValidKeys()), len(specs))
	}
}
