// Package config loads runtime settings from the environment, with an
// optional .env file underneath.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	SeatLock  SeatLockConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Queue     QueueConfig
}

type AppConfig struct {
	Env            string
	Port           string
	Debug          bool
	LogPath        string
	MigrateOnStart bool
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Name         string
	User         string
	Password     string
	MaxOpenConns int
	Timeout      time.Duration // per-query bound on top of the request context
}

type RedisConfig struct {
	Addr      string // empty selects the in-process store
	Password  string
	DB        int
	TLS       bool
	OpTimeout time.Duration
}

type JWTConfig struct {
	Secret string
}

type SeatLockConfig struct {
	TTL time.Duration
}

type CacheConfig struct {
	TTL time.Duration
}

type QueueConfig struct {
	URL            string // empty disables the broker
	BookingLogPath string
}

// Load reads .env when present and then the process environment, which
// wins over the file.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:            v.GetString("APP_ENV"),
			Port:           v.GetString("APP_PORT"),
			Debug:          v.GetBool("DEBUG"),
			LogPath:        v.GetString("LOG_PATH"),
			MigrateOnStart: v.GetBool("MIGRATE_ON_START"),
		},
		Database: DatabaseConfig{
			Host:         v.GetString("DB_HOST"),
			Port:         v.GetString("DB_PORT"),
			Name:         v.GetString("DB_NAME"),
			User:         v.GetString("DB_USER"),
			Password:     v.GetString("DB_PASS"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			Timeout:      v.GetDuration("DB_TIMEOUT"),
		},
		Redis: RedisConfig{
			Addr:      redisAddr(v),
			Password:  v.GetString("REDIS_PASSWORD"),
			DB:        v.GetInt("REDIS_DB"),
			TLS:       v.GetBool("REDIS_TLS"),
			OpTimeout: v.GetDuration("REDIS_OP_TIMEOUT"),
		},
		JWT:       JWTConfig{Secret: v.GetString("JWT_SECRET")},
		SeatLock:  SeatLockConfig{TTL: v.GetDuration("SEAT_LOCK_TTL")},
		RateLimit: loadRateLimit(v),
		Cache:     CacheConfig{TTL: v.GetDuration("CACHE_TTL")},
		Queue: QueueConfig{
			URL:            v.GetString("RABBITMQ_URL"),
			BookingLogPath: v.GetString("BOOKING_LOG_PATH"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("DEBUG", false)
	v.SetDefault("LOG_PATH", "logs/")
	v.SetDefault("MIGRATE_ON_START", true)
	v.SetDefault("DB_HOST", "127.0.0.1")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_TIMEOUT", "3s")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_OP_TIMEOUT", "500ms")
	v.SetDefault("SEAT_LOCK_TTL", "300s")
	v.SetDefault("RATE_LIMIT_LOCK_MAX", 20)
	v.SetDefault("RATE_LIMIT_LOCK_WINDOW", "60s")
	v.SetDefault("RATE_LIMIT_BOOKING_MAX", 10)
	v.SetDefault("RATE_LIMIT_BOOKING_WINDOW", "60s")
	v.SetDefault("CACHE_TTL", "60s")
	v.SetDefault("BOOKING_LOG_PATH", "logs/bookings.log")
}

// redisAddr prefers REDIS_HOST plus REDIS_PORT over REDIS_ADDR.
func redisAddr(v *viper.Viper) string {
	host, port := v.GetString("REDIS_HOST"), v.GetString("REDIS_PORT")
	if host != "" && port != "" {
		return host + ":" + port
	}
	return v.GetString("REDIS_ADDR")
}

func (c *Config) validate() error {
	var missing []string
	if c.Database.User == "" {
		missing = append(missing, "DB_USER")
	}
	if c.Database.Name == "" {
		missing = append(missing, "DB_NAME")
	}
	if c.JWT.Secret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.SeatLock.TTL <= 0 {
		return fmt.Errorf("SEAT_LOCK_TTL must be positive, got %s", c.SeatLock.TTL)
	}
	return nil
}
