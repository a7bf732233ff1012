package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	// DatabaseURL is the Postgres DSN. When empty the server falls back to the
	// embedded SQLite store at SQLitePath (local development).
	DatabaseURL string
	SQLitePath  string

	// RedisURL enables cluster-wide room fan-out. Empty means single-process
	// local broadcast.
	RedisURL string

	JWTSecret          string
	AccessTokenMinutes int

	CORSOrigins []string
	Debug       bool

	SendRatePerSec  float64
	SendBurst       int
	PresenceWindow  time.Duration
	DefaultPageSize int
	MaxPageSize     int
}

func Load() (*Config, error) {
	cfg := &Config{
		AppName: getEnv("APP_NAME", "Stagelink Chat API"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 8000),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "stagelink.db"),
		RedisURL:    os.Getenv("REDIS_URL"),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24),

		Debug: getEnvAsBool("DEBUG", true),

		SendRatePerSec:  float64(getEnvAsInt("SEND_RATE_PER_SEC", 10)),
		SendBurst:       getEnvAsInt("SEND_BURST", 20),
		PresenceWindow:  time.Duration(getEnvAsInt("PRESENCE_WINDOW_SECONDS", 60)) * time.Second,
		DefaultPageSize: getEnvAsInt("DEFAULT_PAGE_SIZE", 50),
		MaxPageSize:     getEnvAsInt("MAX_PAGE_SIZE", 200),
	}

	if cfg.DatabaseURL == "" && os.Getenv("POSTGRES_HOST") != "" {
		u := url.URL{
			Scheme: "postgres",
			User: url.UserPassword(
				getEnv("POSTGRES_USER", "postgres"),
				getEnv("POSTGRES_PASSWORD", "postgres"),
			),
			Host:     fmt.Sprintf("%s:%s", getEnv("POSTGRES_HOST", "localhost"), getEnv("POSTGRES_PORT", "5432")),
			Path:     getEnv("POSTGRES_DB", "stagelink"),
			RawQuery: "sslmode=disable",
		}
		cfg.DatabaseURL = u.String()
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
