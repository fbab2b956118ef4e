package config

import (
	"time"

	"github.com/customeros/mailmirror/internal/database"
	"github.com/customeros/mailmirror/internal/enum"
	"github.com/customeros/mailmirror/services/mailsync"
	"github.com/customeros/mailmirror/services/mutations"
	"github.com/customeros/mailmirror/services/remote"
)

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"12222"`
	APIKey      string `env:"API_KEY"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type StoreConfig struct {
	Driver          string        `env:"STORE_DRIVER" envDefault:"sqlite"`
	Path            string        `env:"STORE_PATH" envDefault:"data/mailmirror.db"`
	Host            string        `env:"STORE_POSTGRES_HOST"`
	Port            string        `env:"STORE_POSTGRES_PORT" envDefault:"5432"`
	User            string        `env:"STORE_POSTGRES_USER"`
	DBName          string        `env:"STORE_POSTGRES_DB_NAME"`
	Password        string        `env:"STORE_POSTGRES_PASSWORD"`
	MaxConn         int           `env:"STORE_POSTGRES_DB_MAX_CONN" envDefault:"10"`
	MaxIdleConn     int           `env:"STORE_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"2"`
	ConnMaxLifetime int           `env:"STORE_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	SSLMode         string        `env:"STORE_POSTGRES_SSL_MODE" envDefault:"disable"`
	LogLevel        string        `env:"STORE_LOG_LEVEL" envDefault:"WARN"`
	BlockedTimeout  time.Duration `env:"STORE_BLOCKED_TIMEOUT" envDefault:"10s"`
	OpenRetries     int           `env:"STORE_OPEN_RETRIES" envDefault:"3"`
	OpenRetryDelay  time.Duration `env:"STORE_OPEN_RETRY_DELAY" envDefault:"200ms"`
}

type SyncConfig struct {
	PageSize    int  `env:"SYNC_PAGE_SIZE" envDefault:"100"`
	MaxMessages int  `env:"SYNC_MAX_MESSAGES" envDefault:"0"`
	FetchBodies bool `env:"SYNC_FETCH_BODIES" envDefault:"false"`
}

type RemoteConfig struct {
	Timeout   time.Duration `env:"REMOTE_TIMEOUT" envDefault:"60s"`
	RateLimit float64       `env:"REMOTE_RATE_LIMIT" envDefault:"10"`
	RateBurst int           `env:"REMOTE_RATE_BURST" envDefault:"5"`
}

type MutationConfig struct {
	MaxRetries    int           `env:"MUTATION_MAX_RETRIES" envDefault:"5"`
	BackoffMin    time.Duration `env:"MUTATION_BACKOFF_MIN" envDefault:"30s"`
	BackoffMax    time.Duration `env:"MUTATION_BACKOFF_MAX" envDefault:"30m"`
	BackoffFactor float64       `env:"MUTATION_BACKOFF_FACTOR" envDefault:"2"`
}

func (c *StoreConfig) DatabaseConfig() *database.DatabaseConfig {
	return &database.DatabaseConfig{
		Driver:          enum.StoreDriver(c.Driver),
		Path:            c.Path,
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		DBName:          c.DBName,
		Password:        c.Password,
		SSLMode:         c.SSLMode,
		MaxConn:         c.MaxConn,
		MaxIdleConn:     c.MaxIdleConn,
		ConnMaxLifetime: c.ConnMaxLifetime,
		LogLevel:        c.LogLevel,
	}
}

func (c *StoreConfig) GatewayConfig() database.GatewayConfig {
	cfg := database.DefaultGatewayConfig()
	cfg.BlockedTimeout = c.BlockedTimeout
	cfg.OpenRetries = c.OpenRetries
	cfg.RetryDelay = c.OpenRetryDelay
	return cfg
}

func (c *SyncConfig) ServiceConfig() mailsync.Config {
	return mailsync.Config{
		PageSize:    c.PageSize,
		MaxMessages: c.MaxMessages,
		FetchBodies: c.FetchBodies,
	}
}

func (c *RemoteConfig) ClientConfig() remote.Config {
	return remote.Config{
		Timeout:   c.Timeout,
		RateLimit: c.RateLimit,
		RateBurst: c.RateBurst,
	}
}

func (c *MutationConfig) ProcessorConfig() mutations.Config {
	return mutations.Config{
		MaxRetries:    c.MaxRetries,
		BackoffMin:    c.BackoffMin,
		BackoffMax:    c.BackoffMax,
		BackoffFactor: c.BackoffFactor,
	}
}
