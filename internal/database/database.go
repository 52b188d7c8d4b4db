package database

import (
	"embed"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*/*.sql
var migrations embed.FS

// goose keeps its dialect and FS in package globals.
var migrateMu sync.Mutex

func Connect(dsn string) (*gorm.DB, error) {
	return open(dsn, &gorm.Config{TranslateError: true})
}

// ConnectQuiet is Connect without gorm's SQL logging; tests use it.
func ConnectQuiet(dsn string) (*gorm.DB, error) {
	return open(dsn, &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)})
}

func open(dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		log.Println("Connecting to PostgreSQL...")
		return gorm.Open(postgres.Open(dsn), cfg)
	}

	log.Println("Using SQLite:", dsn)

	db, err := gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        dsn,
		}),
		cfg,
	)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer at a time; a single connection turns lock
	// contention into queueing and keeps in-memory databases alive.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	return db, nil
}

// Migrate applies the embedded goose migrations for the connected dialect.
func Migrate(db *gorm.DB) error {
	var dialect, dir string
	switch db.Dialector.Name() {
	case "postgres":
		dialect, dir = "postgres", "migrations/postgres"
	case "sqlite":
		dialect, dir = "sqlite3", "migrations/sqlite"
	default:
		return fmt.Errorf("unsupported database dialect %q", db.Dialector.Name())
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := goose.Up(sqlDB, dir); err != nil {
		return fmt.Errorf("migrate %s: %w", dialect, err)
	}
	return nil
}
