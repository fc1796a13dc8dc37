package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTPAddress string `env:"HTTP_ADDRESS" envDefault:":8080"`
	GRPCAddress string `env:"GRPC_ADDRESS" envDefault:":50051"`

	StoreDriver          string        `env:"STORE_DRIVER" envDefault:"mysql"`
	MySQLDSN             string        `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/enrollment?parseTime=true"`
	MySQLMaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"50"`
	MySQLMaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"25"`
	MySQLConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"5m"`
	PostgresURL          string        `env:"POSTGRES_URL"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPoolSize int           `env:"REDIS_POOL_SIZE" envDefault:"100"`
	SeatCacheTTL  time.Duration `env:"SEAT_CACHE_TTL" envDefault:"30s"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"dev_secret_change_me"`
	JWTIssuer string `env:"JWT_ISSUER"`

	LockWaitTimeout time.Duration `env:"LOCK_WAIT_TIMEOUT" envDefault:"5s"`
	TxMaxAttempts   int           `env:"TX_MAX_ATTEMPTS" envDefault:"3"`
	TxRetryBackoff  time.Duration `env:"TX_RETRY_BACKOFF" envDefault:"50ms"`

	MigrateOnStart  bool          `env:"MIGRATE_ON_START" envDefault:"true"`
	SeedFile        string        `env:"SEED_FILE"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Load reads an optional .env file, then parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Ignoring unreadable .env file: %v", err)
	}
	return Parse()
}

// Parse reads configuration from the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMySQL, DriverMemory:
	case DriverPostgres:
		if c.PostgresURL == "" {
			return errors.New("config: POSTGRES_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.TxMaxAttempts < 1 {
		return errors.New("config: TX_MAX_ATTEMPTS must be at least 1")
	}
	if c.LockWaitTimeout < 0 {
		return errors.New("config: LOCK_WAIT_TIMEOUT must not be negative")
	}
	return nil
}
