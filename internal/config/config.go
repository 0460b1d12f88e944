package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Security SecurityConfig
	Email    EmailConfig
	Redis    RedisConfig
}

type DatabaseConfig struct {
	URL               string // DATABASE_URL; overrides the individual fields when set
	Host              string `validate:"required_without=URL"`
	Port              int    `validate:"required_without=URL,omitempty,min=1,max=65535"`
	User              string `validate:"required_without=URL"`
	Password          string `validate:"required_without=URL"`
	Name              string `validate:"required_without=URL"`
	SSLMode           string `validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns          int32  `validate:"min=1"`
	MinConns          int32  `validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port            string `validate:"required,numeric"`
	Env             string `validate:"oneof=development staging production test"`
	LogLevel        string `validate:"oneof=debug info warn error"`
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	SessionSecret           string `validate:"required"`
	Issuer                  string
	SignInPath              string   `validate:"required,startswith=/"`
	ProtectedPrefixes       []string `validate:"dive,startswith=/"`
	IdentityProviderOrigins []string
}

type SecurityConfig struct {
	RulesFile         string
	TrustedProxies    []string
	DevPathPrefix     string `validate:"required,startswith=/"`
	EventRetention    time.Duration
	DispatchQueueSize int `validate:"min=1"`
	DatabaseOrigins   []string
}

type EmailConfig struct {
	AlertsEnabled   bool
	Region          string   `validate:"required_if=AlertsEnabled true"`
	FromAddress     string   `validate:"required_if=AlertsEnabled true,omitempty,email"`
	Recipients      []string `validate:"dive,email"`
	AlertsPerMinute int      `validate:"min=1"`
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int    `validate:"min=0"`
	StatsPrefix string `validate:"required"`
	StatsTTL    time.Duration
}

// Enabled reports whether the Redis stats mirror is configured
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// IsDevelopment reports whether the server runs in the development environment
func (c ServerConfig) IsDevelopment() bool {
	return c.Env == "development"
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			URL:               getEnv("DATABASE_URL", ""),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "cadence"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Env:             env,
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:  parseAllowedOrigins(env),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			SessionSecret:           getEnv("SESSION_SECRET", ""),
			Issuer:                  getEnv("SESSION_ISSUER", ""),
			SignInPath:              getEnv("SIGN_IN_PATH", "/sign-in"),
			ProtectedPrefixes:       getEnvAsList("PROTECTED_PATHS", []string{"/dashboard", "/tasks", "/calendar", "/settings"}),
			IdentityProviderOrigins: getEnvAsList("IDENTITY_PROVIDER_ORIGINS", nil),
		},
		Security: SecurityConfig{
			RulesFile:         getEnv("SECURITY_RULES_FILE", ""),
			TrustedProxies:    getEnvAsList("TRUSTED_PROXIES", nil),
			DevPathPrefix:     getEnv("DEV_PATH_PREFIX", "/api/dev/"),
			EventRetention:    getEnvAsDuration("SECURITY_EVENT_DB_RETENTION", 30*24*time.Hour),
			DispatchQueueSize: getEnvAsInt("SECURITY_DISPATCH_QUEUE_SIZE", 256),
			DatabaseOrigins:   getEnvAsList("DATABASE_ORIGINS", nil),
		},
		Email: EmailConfig{
			AlertsEnabled:   getEnvAsBool("EMAIL_ALERTS_ENABLED", false),
			Region:          getEnv("AWS_REGION", ""),
			FromAddress:     getEnv("ALERT_FROM_ADDRESS", ""),
			Recipients:      getEnvAsList("ALERT_RECIPIENTS", nil),
			AlertsPerMinute: getEnvAsInt("ALERTS_PER_MINUTE", 6),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", ""),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			StatsPrefix: getEnv("REDIS_STATS_PREFIX", "security:stats"),
			StatsTTL:    getEnvAsDuration("REDIS_STATS_TTL", 24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks struct tags and the session secret strength
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return validateSessionSecret(c.Auth.SessionSecret, c.Server.Env)
}

// validateSessionSecret enforces minimum security standards for the session signing secret
func validateSessionSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits for HS256
	}

	if len(secret) < minLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("SESSION_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsList splits a comma separated value, dropping blank entries
func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}

	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}
	return list
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS", []string{}) // no origins by default in production
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
