package database

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB      *gorm.DB
	once    sync.Once
	connErr error
)

// Connect opens the process-wide database once. driver is "postgres" or
// "sqlite"; for postgres an empty dsn is assembled from DB_* variables.
func Connect(driver, dsn string) (*gorm.DB, error) {
	once.Do(func() {
		switch driver {
		case "sqlite":
			DB, connErr = OpenSQLite(dsn)
		default:
			if dsn == "" {
				dsn = fmt.Sprintf(
					"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
					valueOrDefault("DB_HOST", "localhost"),
					valueOrDefault("DB_USER", "postgres"),
					os.Getenv("DB_PASS"),
					valueOrDefault("DB_NAME", "flowback"),
					valueOrDefault("DB_PORT", "5432"),
				)
			}
			DB, connErr = OpenPostgres(dsn)
		}
		if connErr == nil {
			log.Info().Str("driver", driver).Msg("database connected")
		}
	})

	return DB, connErr
}

func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: nowUTC,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return db, nil
}

// OpenSQLite opens a SQLite database pinned to a single connection.
// PRAGMA foreign_keys is per connection and the schema editor toggles it
// around migrations, so every statement has to go through the same one.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: nowUTC,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func GetDB() *gorm.DB {
	return DB
}

func valueOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}
