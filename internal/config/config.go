package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultDSN         = "host=localhost user=postgres password=postgres dbname=nexile port=5432 sslmode=disable"
	defaultCORS        = "http://localhost:5173"
	defaultManagerCode = "123456"
)

type Config struct {
	HTTPPort string
	AppEnv   string
	LogLevel string

	DatabaseDriver string // postgres | sqlite
	DatabaseDSN    string
	SQLitePath     string

	JWTSecret         string
	TokenTTL          time.Duration
	CORSOrigins       string
	ManagerAccessCode string
	AuthRateLimit     string // ulule/limiter format, ör. "20-M"
	TrialDays         int

	// Satış kaydı için çoklu-doküman transaction denemesi
	SalesAtomic bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GeminiAPIKey string
	GeminiModel  string
	InsightTTL   time.Duration

	ExpiryWarningDays int
	ExpiryRiskDays    int
}

// Load reads the environment (and .env when present). It never fails; call Validate
// before serving.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		AppEnv:   getEnv("APP_ENV", "production"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseDriver: getEnv("DB_DRIVER", "postgres"),
		DatabaseDSN:    getEnv("DATABASE_DSN", defaultDSN),
		SQLitePath:     getEnv("SQLITE_PATH", "nexile.db"),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		TokenTTL:          getDuration("TOKEN_TTL", 24*time.Hour),
		CORSOrigins:       getEnv("CORS_ALLOWED_ORIGINS", defaultCORS),
		ManagerAccessCode: getEnv("MANAGER_ACCESS_CODE", defaultManagerCode),
		AuthRateLimit:     getEnv("AUTH_RATE_LIMIT", "20-M"),
		TrialDays:         getInt("TRIAL_DAYS", 7),

		SalesAtomic: getBool("SALES_ATOMIC", true),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		InsightTTL:   getDuration("INSIGHT_TTL", 15*time.Minute),

		ExpiryWarningDays: getInt("EXPIRY_WARNING_DAYS", 30),
		ExpiryRiskDays:    getInt("EXPIRY_RISK_DAYS", 90),
	}
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return errors.New("DB_DRIVER must be postgres or sqlite")
	}
	if c.ManagerAccessCode == "" {
		return errors.New("MANAGER_ACCESS_CODE must not be empty")
	}
	return nil
}

// Warnings lists insecure defaults that are tolerated in development.
func (c *Config) Warnings() []string {
	var w []string
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == defaultDSN {
		w = append(w, "DATABASE_DSN uses the default value, set your own Postgres connection for production")
	}
	if c.CORSOrigins == defaultCORS {
		w = append(w, "CORS_ALLOWED_ORIGINS uses the default value, set your own domain for production")
	}
	if c.ManagerAccessCode == defaultManagerCode {
		w = append(w, "MANAGER_ACCESS_CODE uses the default value")
	}
	if !c.SalesAtomic {
		w = append(w, "SALES_ATOMIC is off, sales are recorded without a database transaction")
	}
	return w
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
