package app

import (
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

// Store backends selectable through AUTHZ_STORE.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	Issuer string // Issuer used when a request does not name one (default: http://localhost:8080)

	SigningKeys     string // Optional: JSON array of {privateKey, publicKey} pairs
	SigningKeysFile string // Optional: file holding the same JSON, used when SigningKeys is empty
	CurrentKID      string // Optional: kid of the signing pair (default: last pair)

	Store         string // Store backend: memory, sqlite, redis (default: sqlite)
	DatabaseFile  string // SQLite database file (default: ./authz.db)
	RedisAddr     string // Redis address (default: localhost:6379)
	RedisPassword string
	RedisDB       int
	RedisPrefix   string // Key prefix shared by every actor (default: authz:)
	MaxValueSize  int    // Largest value a store accepts in bytes (default: store default)

	CodeTTL                time.Duration // Exchange code lifetime (default: 120s)
	AccessTokenTTL         time.Duration // Access and ID token lifetime (default: 1h)
	RefreshTokenTTL        time.Duration // Refresh token lifetime (default: 90 days)
	AuthenticationTokenTTL time.Duration // First party session token lifetime (default: 90 days)

	ClientsFile  string // Optional: JSON array of registered clients
	ProfilesFile string // Optional: JSON array of identity profiles
	PepperFile   string // Optional: pepper mixed into client secret hashes (default: ./pepper)

	AnalyticsURL    string // Optional: capture endpoint; events are logged when empty
	AnalyticsAPIKey string

	ExternalDataReadsPerMin  int // Per identity and app (default: 60, 0 disables)
	ExternalDataWritesPerMin int // Per identity and app (default: 30, 0 disables)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Overdue alarm sweep interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		Issuer:          getEnvOrDefault("AUTHZ_ISSUER", "http://localhost:8080"),
		SigningKeys:     os.Getenv("AUTHZ_SIGNING_KEYS"),
		SigningKeysFile: os.Getenv("AUTHZ_SIGNING_KEYS_FILE"),
		CurrentKID:      os.Getenv("AUTHZ_CURRENT_KID"),

		Store:         getEnvOrDefault("AUTHZ_STORE", StoreSQLite),
		DatabaseFile:  getEnvOrDefault("AUTHZ_DATABASE_FILE", "authz.db"),
		RedisAddr:     getEnvOrDefault("AUTHZ_REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("AUTHZ_REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("AUTHZ_REDIS_DB", 0),
		RedisPrefix:   getEnvOrDefault("AUTHZ_REDIS_PREFIX", "authz:"),
		MaxValueSize:  getEnvIntOrDefault("AUTHZ_MAX_VALUE_SIZE", 0),

		CodeTTL:                getEnvDurationOrDefault("AUTHZ_CODE_TTL", domain.DefaultCodeTTL),
		AccessTokenTTL:         getEnvDurationOrDefault("AUTHZ_ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTokenTTL:        getEnvDurationOrDefault("AUTHZ_REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),
		AuthenticationTokenTTL: getEnvDurationOrDefault("AUTHZ_AUTHENTICATION_TOKEN_TTL", jwtx.DefaultAuthenticationTokenTTL),

		ClientsFile:  os.Getenv("AUTHZ_CLIENTS_FILE"),
		ProfilesFile: os.Getenv("AUTHZ_PROFILES_FILE"),
		PepperFile:   getEnvOrDefault("AUTHZ_PEPPER_FILE", "pepper"),

		AnalyticsURL:    os.Getenv("AUTHZ_ANALYTICS_URL"),
		AnalyticsAPIKey: os.Getenv("AUTHZ_ANALYTICS_API_KEY"),

		ExternalDataReadsPerMin:  getEnvIntOrDefault("AUTHZ_EXTERNAL_DATA_READS_PER_MIN", 60),
		ExternalDataWritesPerMin: getEnvIntOrDefault("AUTHZ_EXTERNAL_DATA_WRITES_PER_MIN", 30),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
