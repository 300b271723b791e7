// Package db provides database connectivity and operations
package db

import (
	"errors"
	"fmt"
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/elecmate/rams/internal/db/models"
)

// Database configuration constants
const (
	// DefaultHost is the default database host
	DefaultHost = "localhost"
	// DefaultPort is the default database port
	DefaultPort = 5432
	// DefaultUser is the default database user
	DefaultUser = "postgres"
	// DefaultPassword is the default database password
	DefaultPassword = "postgres"
	// DefaultDBName is the default database name
	DefaultDBName = "rams"
	// DefaultSQLitePath is used when the sqlite driver is selected without a path
	DefaultSQLitePath = "rams.db"
)

// Options represents database connection configuration options
type Options struct {
	// Driver is "postgres" (default) or "sqlite"
	Driver     string
	Host       string
	User       string
	Password   string
	DBName     string
	Port       int
	SSLMode    string
	SQLitePath string
	LogLevel   logger.LogLevel
}

// New opens a database connection with the given options and migrates the
// generation tables.
func New(opts Options) (*gorm.DB, error) {
	opts = setDefaults(opts)

	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dialector, err := dialectorFor(opts)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", opts.Driver, err)
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the job and partial cache tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GenerationJob{},
		&models.PartialCacheEntry{},
	)
}

// IsDuplicateKeyError checks if the given error is a PostgreSQL duplicate key error
func IsDuplicateKeyError(err error) bool {
	return errors.Is(postgres.Dialector{}.Translate(err), gorm.ErrDuplicatedKey)
}

func dialectorFor(opts Options) (gorm.Dialector, error) {
	switch opts.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
			opts.Host, opts.User, opts.Password, opts.DBName, opts.Port, opts.SSLMode)
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(opts.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

func setDefaults(opts Options) Options {
	if opts.Driver == "" {
		opts.Driver = "postgres"
	}
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.User == "" {
		opts.User = DefaultUser
	}
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	if opts.DBName == "" {
		opts.DBName = DefaultDBName
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.SSLMode == "" {
		opts.SSLMode = "disable"
	}
	if opts.SQLitePath == "" {
		opts.SQLitePath = DefaultSQLitePath
	}
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Warn
	}
	return opts
}
