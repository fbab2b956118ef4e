package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/customeros/mailmirror/internal/enum"
)

type DatabaseConfig struct {
	Driver          enum.StoreDriver
	Path            string
	Host            string
	Port            string
	User            string
	DBName          string
	Password        string
	SSLMode         string
	MaxConn         int
	MaxIdleConn     int
	ConnMaxLifetime int
	LogLevel        string
}

// Dialer opens a connection to the local store. It may fail with a blocked
// error while another connection holds the store.
type Dialer func(ctx context.Context) (*gorm.DB, error)

func NewDialer(dbConfig *DatabaseConfig) (Dialer, error) {
	if dbConfig == nil {
		return nil, fmt.Errorf("database config is nil")
	}
	switch dbConfig.Driver {
	case enum.DriverSqlite, "":
		return NewSqliteDialer(dbConfig.Path, dbConfig.LogLevel), nil
	case enum.DriverPostgres:
		if err := validateConfig(dbConfig); err != nil {
			return nil, err
		}
		return NewPostgresDialer(dbConfig), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", dbConfig.Driver)
	}
}

// NewSqliteDialer opens a single-connection sqlite store at path. The busy
// timeout is kept short so a locked store surfaces as a blocked error and the
// gateway decides how long to wait.
func NewSqliteDialer(path, logLevel string) Dialer {
	return func(ctx context.Context) (*gorm.DB, error) {
		if path != ":memory:" && !strings.HasPrefix(path, "file:") {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
		}

		dsn := path
		if !strings.Contains(dsn, "?") {
			dsn += "?_busy_timeout=100&_foreign_keys=on"
		}

		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(gormLogLevel(logLevel)),
		})
		if err != nil {
			return nil, err
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows one writer, a pool only produces lock contention
		sqlDB.SetMaxOpenConns(1)

		if err := sqlDB.PingContext(ctx); err != nil {
			sqlDB.Close()
			return nil, err
		}
		return db, nil
	}
}

func NewPostgresDialer(dbConfig *DatabaseConfig) Dialer {
	return func(ctx context.Context) (*gorm.DB, error) {
		portInt, err := strconv.Atoi(dbConfig.Port)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %w", err)
		}

		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			dbConfig.Host, portInt, dbConfig.User, dbConfig.Password, dbConfig.DBName, dbConfig.SSLMode,
		)

		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(gormLogLevel(dbConfig.LogLevel)),
		})
		if err != nil {
			return nil, err
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
		sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

		if err := sqlDB.PingContext(ctx); err != nil {
			sqlDB.Close()
			return nil, err
		}
		return db, nil
	}
}

func validateConfig(config *DatabaseConfig) error {
	switch {
	case config.Host == "":
		return fmt.Errorf("database host config is empty")
	case config.Port == "":
		return fmt.Errorf("database port config is empty")
	case config.User == "":
		return fmt.Errorf("database user config is empty")
	case config.DBName == "":
		return fmt.Errorf("database name config is empty")
	case config.SSLMode == "":
		return fmt.Errorf("database SSLMode config is empty")
	}
	return nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
