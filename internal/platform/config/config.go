package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	devJWTSecret = "dev-only-secret-change-me"
)

// Config is loaded once at startup and treated as read-only afterwards.
type Config struct {
	AppEnv  string
	APIPort string
	Storage string

	JWTKey       []byte
	JWTExp       time.Duration
	CookieSecure bool
	BcryptCost   int

	// CORSAllowedOrigins are the browser origins allowed to send
	// credentialed requests.
	CORSAllowedOrigins []string

	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBSslMode      string
	DBConnStr      string
	DBMaxOpenConns int
	DBQueryTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RatingAuditEnabled    bool
	RatingAuditQueue      string
	RatingAuditLockKey    string
	RatingAuditLockTTL    time.Duration
	RatingAuditPopTimeout time.Duration

	LogLevel string
	LogDir   string
}

// Load reads an optional .env file and then the process environment. The
// result is not validated; callers apply overrides and then call Validate.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() *Config {
	cfg := &Config{
		AppEnv:       getEnv("APP_ENV", "production"),
		APIPort:      getEnv("API_PORT", "8080"),
		Storage:      strings.ToLower(getEnv("STORAGE", StoragePostgres)),
		JWTKey:       []byte(getEnv("JWT_SECRET", "")),
		JWTExp:       time.Duration(getEnvAsInt("JWT_EXPIRATION_MINUTES", 30)) * time.Minute,
		CookieSecure: getEnvAsBool("COOKIE_SECURE", true),
		BcryptCost:   getEnvAsInt("BCRYPT_COST", bcrypt.DefaultCost),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "user"),
		DBPassword:     getEnv("DB_PASSWORD", "password"),
		DBName:         getEnv("DB_NAME", "starblog"),
		DBSslMode:      getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		DBQueryTimeout: time.Duration(getEnvAsInt("DB_QUERY_TIMEOUT_MS", 5000)) * time.Millisecond,

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		RatingAuditEnabled:    getEnvAsBool("RATING_AUDIT_ENABLED", true),
		RatingAuditQueue:      getEnv("RATING_AUDIT_QUEUE", "rating_audit_queue"),
		RatingAuditLockKey:    getEnv("RATING_AUDIT_LOCK_KEY", "rating_audit_lock"),
		RatingAuditLockTTL:    time.Duration(getEnvAsInt("RATING_AUDIT_LOCK_TTL_SECONDS", 30)) * time.Second,
		RatingAuditPopTimeout: time.Duration(getEnvAsInt("RATING_AUDIT_POP_TIMEOUT_SECONDS", 5)) * time.Second,

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogDir:   getEnv("LOG_DIR", ""),
	}

	if len(cfg.JWTKey) == 0 && cfg.IsDevelopment() {
		cfg.JWTKey = []byte(devJWTSecret)
	}

	cfg.DBConnStr = postgresURL(cfg)
	return cfg
}

// postgresURL escapes every part, so passwords may hold spaces, quotes
// or '@'.
func postgresURL(c *Config) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSslMode}}.Encode(),
	}
	return u.String()
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.JWTKey) == 0 {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.JWTExp <= 0 {
		return errors.New("config: JWT_EXPIRATION_MINUTES must be positive")
	}
	if c.Storage != StoragePostgres && c.Storage != StorageMemory {
		return fmt.Errorf("config: unknown STORAGE %q", c.Storage)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("config: BCRYPT_COST must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.DBQueryTimeout <= 0 {
		return errors.New("config: DB_QUERY_TIMEOUT_MS must be positive")
	}
	for _, origin := range c.CORSAllowedOrigins {
		if origin == "*" {
			return errors.New("config: CORS_ALLOWED_ORIGINS cannot be * when credentials are allowed")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}
