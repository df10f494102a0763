package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrEmptyDatabasePath   = errors.New("database path cannot be empty")
	ErrInvalidMaxConns     = errors.New("max connections must be greater than 0")
	ErrInvalidConnLifetime = errors.New("connection max lifetime must be greater than 0")
	ErrInvalidConnIdleTime = errors.New("connection max idle time must be greater than 0")
	ErrEmptyMigrationsPath = errors.New("migrations path cannot be empty")
)

// Config holds the settings of the SQLite project store
type Config struct {
	DatabasePath    string        `json:"database_path" yaml:"database_path"`
	MaxConnections  int           `json:"max_connections" yaml:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	MigrationsPath  string        `json:"migrations_path" yaml:"migrations_path"`
}

// DefaultConfig returns production-ready database configuration
// FUNCTIONAL DISCOVERY: The broker only reads projects on first join of a room,
// so a small pool is plenty even with many live connections
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./data/t3dstream.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 10,
		MigrationsPath:  "./migrations",
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	switch {
	case c.DatabasePath == "":
		return ErrEmptyDatabasePath
	case c.MaxConnections <= 0:
		return ErrInvalidMaxConns
	case c.ConnMaxLifetime <= 0:
		return ErrInvalidConnLifetime
	case c.ConnMaxIdleTime <= 0:
		return ErrInvalidConnIdleTime
	case c.MigrationsPath == "":
		return ErrEmptyMigrationsPath
	}
	return nil
}

// SQLite pragmas
// ARCHITECTURAL DISCOVERY: WAL mode lets room-creation lookups read while the
// single writer goroutine inserts projects
const sqliteOptimizations = `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = NORMAL;
	PRAGMA cache_size = -16000;
	PRAGMA temp_store = MEMORY;
	PRAGMA busy_timeout = 5000;
`

// Open opens the SQLite file described by the config and applies pool limits and pragmas
func Open(c *Config) (*sql.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(c.MaxConnections)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.ConnMaxIdleTime)

	if _, err := db.Exec(sqliteOptimizations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	return db, nil
}
