package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Security SecurityConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	LockoutThreshold   int
	LockoutWindow      time.Duration
	LockoutDuration    time.Duration
	CSRFTokenTTL       time.Duration
	MFAIssuer          string
	MFAEnabled         bool
	SecureCookies      bool
}

// SecurityConfig carries the reputation engine thresholds and the
// background cleanup cadence.
type SecurityConfig struct {
	RateWindow         time.Duration
	RequestThreshold   int
	SpikeWindow        time.Duration
	AnomalyThreshold   int
	RateAlertThreshold int
	BlockDuration      time.Duration
	GeoBlockingEnabled bool
	GeoAPIBaseURL      string
	GeoCacheTTL        time.Duration
	StoreTimeout       time.Duration
	CleanupInterval    time.Duration
}

type EmailConfig struct {
	Enabled       bool
	Region        string
	FromAddress   string
	AlertAddress  string
	MinSeverity   string
	SendTimeout   time.Duration
}

// Development fallbacks for required values. Missing required values are
// fatal in production and a warning plus fallback in development, so a
// fresh checkout runs without a .env file.
const (
	devJWTSecret  = "insecure-dev-signing-secret-do-not-deploy"
	devDBPassword = "postgres"
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	jwtSecret, err := requiredEnv("JWT_SECRET", devJWTSecret, env)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "aegis"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			LockoutThreshold:   getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutWindow:      getEnvAsDuration("LOCKOUT_WINDOW", 15*time.Minute),
			LockoutDuration:    getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			CSRFTokenTTL:       getEnvAsDuration("CSRF_TOKEN_TTL", 24*time.Hour),
			MFAIssuer:          getEnv("MFA_ISSUER", "Aegis"),
			MFAEnabled:         getEnvAsBool("MFA_ENABLED", true),
			SecureCookies:      env == "production",
		},
		Security: SecurityConfig{
			RateWindow:         getEnvAsDuration("RATE_WINDOW", time.Minute),
			RequestThreshold:   getEnvAsInt("REQUEST_THRESHOLD", 100),
			SpikeWindow:        getEnvAsDuration("SPIKE_WINDOW", 5*time.Minute),
			AnomalyThreshold:   getEnvAsInt("ANOMALY_THRESHOLD", 10),
			RateAlertThreshold: getEnvAsInt("RATE_ALERT_THRESHOLD", 5),
			BlockDuration:      getEnvAsDuration("BLOCK_DURATION", 15*time.Minute),
			GeoBlockingEnabled: getEnvAsBool("GEO_BLOCKING_ENABLED", false),
			GeoAPIBaseURL:      getEnv("GEO_API_BASE_URL", "http://ip-api.com/json"),
			GeoCacheTTL:        getEnvAsDuration("GEO_CACHE_TTL", 24*time.Hour),
			StoreTimeout:       getEnvAsDuration("SECURITY_STORE_TIMEOUT", 2*time.Second),
			CleanupInterval:    getEnvAsDuration("SECURITY_CLEANUP_INTERVAL", 1*time.Hour),
		},
		Email: EmailConfig{
			Enabled:      getEnvAsBool("EMAIL_ALERTS_ENABLED", false),
			Region:       getEnv("AWS_REGION", "us-east-1"),
			FromAddress:  getEnv("ALERT_FROM_ADDRESS", ""),
			AlertAddress: getEnv("ALERT_TO_ADDRESS", ""),
			MinSeverity:  getEnv("ALERT_MIN_SEVERITY", "critical"),
			SendTimeout:  getEnvAsDuration("ALERT_SEND_TIMEOUT", 10*time.Second),
		},
	}

	if cfg.Database.Password == "" {
		password, err := requiredEnv("DB_PASSWORD", devDBPassword, env)
		if err != nil {
			return nil, err
		}
		cfg.Database.Password = password
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.Email.Enabled && (cfg.Email.FromAddress == "" || cfg.Email.AlertAddress == "") {
		return nil, fmt.Errorf("ALERT_FROM_ADDRESS and ALERT_TO_ADDRESS are required when email alerts are enabled")
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// requiredEnv reads a value that the service cannot run without. Missing in
// production is fatal; in development it warns and falls back.
func requiredEnv(key, devFallback, env string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	if env == "production" {
		return "", fmt.Errorf("%s is required in production", key)
	}
	slog.Warn("required value not set, using development fallback", slog.String("key", key))
	return devFallback, nil
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
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
