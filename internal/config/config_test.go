package config

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret-32-characters-long!!"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("DB_PASSWORD", "test")
}

func TestServerConfig_Timeouts_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
		{"ShutdownTimeout", cfg.Server.ShutdownTimeout, 30 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestServerConfig_Timeouts_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT", "30s")
	t.Setenv("SERVER_WRITE_TIMEOUT", "45s")
	t.Setenv("SERVER_IDLE_TIMEOUT", "120s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout: got %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 45*time.Second {
		t.Errorf("WriteTimeout: got %v, want 45s", cfg.Server.WriteTimeout)
	}
	if cfg.Server.IdleTimeout != 120*time.Second {
		t.Errorf("IdleTimeout: got %v, want 120s", cfg.Server.IdleTimeout)
	}
}

func TestServerConfig_Timeouts_InvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	// Invalid duration should fall back to default
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout with invalid value: got %v, want %v", cfg.Server.ReadTimeout, 15*time.Second)
	}
}

func TestSecurityConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Security.DevPathPrefix != "/api/dev/" {
		t.Errorf("DevPathPrefix: got %q", cfg.Security.DevPathPrefix)
	}
	if cfg.Security.EventRetention != 30*24*time.Hour {
		t.Errorf("EventRetention: got %v", cfg.Security.EventRetention)
	}
	if cfg.Auth.SignInPath != "/sign-in" {
		t.Errorf("SignInPath: got %q", cfg.Auth.SignInPath)
	}
	if cfg.Redis.Enabled() {
		t.Error("Redis should be disabled without REDIS_ADDR")
	}
	if cfg.Email.AlertsEnabled {
		t.Error("email alerts should be disabled by default")
	}
	if !cfg.Server.IsDevelopment() {
		t.Error("default environment should be development")
	}
}

func TestLoad_Lists(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.0/8, ,192.168.1.1 ")
	t.Setenv("PROTECTED_PATHS", "/app,/board")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if got := strings.Join(cfg.Security.TrustedProxies, "|"); got != "10.0.0.0/8|192.168.1.1" {
		t.Errorf("TrustedProxies: got %q", got)
	}
	if got := strings.Join(cfg.Auth.ProtectedPrefixes, "|"); got != "/app|/board" {
		t.Errorf("ProtectedPrefixes: got %q", got)
	}
}

func TestRedisConfig_Stats(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.Redis.StatsPrefix != "security:stats" {
		t.Errorf("StatsPrefix: got %q", cfg.Redis.StatsPrefix)
	}
	if cfg.Redis.StatsTTL != 24*time.Hour {
		t.Errorf("StatsTTL: got %v", cfg.Redis.StatsTTL)
	}

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_STATS_PREFIX", "cadence:sec")
	t.Setenv("REDIS_STATS_TTL", "6h")

	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if !cfg.Redis.Enabled() {
		t.Error("Redis should be enabled with REDIS_ADDR")
	}
	if cfg.Redis.StatsPrefix != "cadence:sec" {
		t.Errorf("StatsPrefix: got %q", cfg.Redis.StatsPrefix)
	}
	if cfg.Redis.StatsTTL != 6*time.Hour {
		t.Errorf("StatsTTL: got %v", cfg.Redis.StatsTTL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing session secret", map[string]string{"SESSION_SECRET": "", "DB_PASSWORD": "test"}},
		{"short secret in production", map[string]string{"SESSION_SECRET": "sixteen-chars-ok", "DB_PASSWORD": "test", "ENV": "production"}},
		{"missing db password", map[string]string{"SESSION_SECRET": testSecret}},
		{"unknown environment", map[string]string{"SESSION_SECRET": testSecret, "DB_PASSWORD": "test", "ENV": "qa"}},
		{"alerts without sender", map[string]string{"SESSION_SECRET": testSecret, "DB_PASSWORD": "test", "EMAIL_ALERTS_ENABLED": "true", "AWS_REGION": "us-east-1"}},
		{"bad recipient", map[string]string{"SESSION_SECRET": testSecret, "DB_PASSWORD": "test", "ALERT_RECIPIENTS": "not-an-email"}},
		{"relative sign-in path", map[string]string{"SESSION_SECRET": testSecret, "DB_PASSWORD": "test", "SIGN_IN_PATH": "sign-in"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_PASSWORD", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if _, err := Load(); err == nil {
				t.Error("Load() = nil, want error")
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "pw", Name: "cadence", SSLMode: "disable"}
	if got := cfg.DSN(); got != "host=db port=5432 user=app password=pw dbname=cadence sslmode=disable" {
		t.Errorf("DSN() = %q", got)
	}

	cfg.URL = "postgres://app:pw@db:5432/cadence"
	if got := cfg.DSN(); got != cfg.URL {
		t.Errorf("DSN() with URL = %q", got)
	}
}

func TestValidateSessionSecret_WeakValues(t *testing.T) {
	if err := validateSessionSecret("changeme", "development"); err == nil {
		t.Error("short secret should be rejected")
	}
	if err := validateSessionSecret("a-development-secret", "development"); err != nil {
		t.Errorf("valid secret rejected: %v", err)
	}
}
