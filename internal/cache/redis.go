package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/velostat/velostat_core/internal/models"
)

// Config holds Redis configuration for the result-table cache.
type Config struct {
	Host       string
	Port       int
	Password   string
	DB         int
	TLSEnabled bool
	TTL        time.Duration
}

// LoadConfigFromEnv loads Redis configuration from environment variables.
func LoadConfigFromEnv() Config {
	port, _ := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := time.ParseDuration(getEnv("CACHE_TTL", "24h"))
	if err != nil {
		ttl = 24 * time.Hour
	}

	return Config{
		Host:       getEnv("REDIS_HOST", "localhost"),
		Port:       port,
		Password:   getEnv("REDIS_PASSWORD", ""),
		DB:         db,
		TLSEnabled: getEnv("REDIS_TLS_ENABLED", "false") == "true",
		TTL:        ttl,
	}
}

// New connects a Redis client for the given config and verifies the
// connection with a ping.
func New(ctx context.Context, config Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
	if config.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RentalsKey is the cache key for the hourly rental table of one processing
// window (e.g. "201908" or "201906-201909").
func RentalsKey(window string) string {
	return fmt.Sprintf("rentals:%s", window)
}

// AvailabilityKey is the cache key for the hourly availability table of one
// processing window.
func AvailabilityKey(window string) string {
	return fmt.Sprintf("availability:%s", window)
}

// GetHourlyRentals retrieves a cached rental table. A miss returns (nil, nil).
func GetHourlyRentals(ctx context.Context, client *redis.Client, key string) ([]models.HourlyRentalCount, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []models.HourlyRentalCount
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached rentals: %w", err)
	}
	return rows, nil
}

// SetHourlyRentals caches a rental table.
func SetHourlyRentals(ctx context.Context, client *redis.Client, key string, rows []models.HourlyRentalCount, ttl time.Duration) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal rentals: %w", err)
	}
	return client.Set(ctx, key, data, ttl).Err()
}

// GetHourlyAvailability retrieves a cached availability table. A miss returns
// (nil, nil).
func GetHourlyAvailability(ctx context.Context, client *redis.Client, key string) ([]models.HourlyAvailability, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []models.HourlyAvailability
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached availability: %w", err)
	}
	return rows, nil
}

// SetHourlyAvailability caches an availability table.
func SetHourlyAvailability(ctx context.Context, client *redis.Client, key string, rows []models.HourlyAvailability, ttl time.Duration) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal availability: %w", err)
	}
	return client.Set(ctx, key, data, ttl).Err()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
