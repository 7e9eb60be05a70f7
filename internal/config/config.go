// Package config reads server settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Auth modes.
const (
	AuthJWT = "jwt"
	AuthDev = "dev"
)

// Planner strategies.
const (
	PlannerGreedy = "greedy"
	PlannerExact  = "exact"
)

type Config struct {
	// HTTP server
	Port string

	// Storage
	StorageBackend string
	DBPath         string
	DatabaseURL    string

	// Cache
	CacheBackend string
	CacheSize    int
	CacheTTL     time.Duration
	RedisAddr    string

	// AMQP, disabled when AMQPURL is empty
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Auth
	AuthMode  string
	JWTSecret string
	JWTTTL    time.Duration

	// Ledger
	Planner          string
	BatchConcurrency int
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		StorageBackend: getEnv("STORAGE_BACKEND", StorageSQLite),
		DBPath:         getEnv("DB_PATH", "./data/settleup.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		CacheBackend: getEnv("CACHE_BACKEND", CacheMemory),
		CacheSize:    getEnvInt("CACHE_SIZE", 256),
		CacheTTL:     getEnvDuration("CACHE_TTL", 10*time.Minute),
		RedisAddr:    getEnv("REDIS_ADDR", ""),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "settleup"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "settlement.committed"),

		AuthMode:  getEnv("AUTH_MODE", AuthJWT),
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    getEnvDuration("JWT_TTL", 24*time.Hour),

		Planner:          getEnv("PLANNER", PlannerGreedy),
		BatchConcurrency: getEnvInt("BATCH_CONCURRENCY", 4),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	storageBackends := []string{StorageMemory, StorageSQLite, StoragePostgres}
	if !slices.Contains(storageBackends, c.StorageBackend) {
		errs = append(errs, fmt.Sprintf("invalid storage backend '%s': must be one of %v", c.StorageBackend, storageBackends))
	}
	if c.StorageBackend == StorageSQLite && c.DBPath == "" {
		errs = append(errs, "DB_PATH cannot be empty when using sqlite backend")
	}
	if c.StorageBackend == StoragePostgres && c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required when using postgres backend")
	}

	cacheBackends := []string{CacheNone, CacheMemory, CacheRedis}
	if !slices.Contains(cacheBackends, c.CacheBackend) {
		errs = append(errs, fmt.Sprintf("invalid cache backend '%s': must be one of %v", c.CacheBackend, cacheBackends))
	}
	if c.CacheBackend == CacheMemory && c.CacheSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheBackend != CacheNone && c.CacheTTL <= 0 {
		errs = append(errs, fmt.Sprintf("invalid cache TTL %v: must be positive", c.CacheTTL))
	}
	if c.CacheBackend == CacheRedis && c.RedisAddr == "" {
		errs = append(errs, "REDIS_ADDR is required when using redis cache")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errs = append(errs, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	switch c.AuthMode {
	case AuthJWT:
		if c.JWTSecret == "" {
			errs = append(errs, "JWT_SECRET is required when AUTH_MODE is jwt")
		}
		if c.JWTTTL <= 0 {
			errs = append(errs, fmt.Sprintf("invalid JWT TTL %v: must be positive", c.JWTTTL))
		}
	case AuthDev:
	default:
		errs = append(errs, fmt.Sprintf("invalid auth mode '%s': must be one of [%s %s]", c.AuthMode, AuthJWT, AuthDev))
	}

	if c.Planner != PlannerGreedy && c.Planner != PlannerExact {
		errs = append(errs, fmt.Sprintf("invalid planner '%s': must be one of [%s %s]", c.Planner, PlannerGreedy, PlannerExact))
	}
	if c.BatchConcurrency < 1 {
		errs = append(errs, fmt.Sprintf("invalid batch concurrency %d: must be at least 1", c.BatchConcurrency))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
