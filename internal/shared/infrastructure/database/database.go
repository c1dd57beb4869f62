// Package database hides the SQL driver behind a small executor API so the
// store runs on PostgreSQL in production and SQLite on a laptop. Drivers
// register themselves from their own packages; import them for effect.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
)

// Driver names a supported SQL backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

func (d Driver) String() string {
	return string(d)
}

// IsValid reports whether d names a supported backend.
func (d Driver) IsValid() bool {
	return d == DriverPostgres || d == DriverSQLite
}

// DetectDriver guesses the backend from a connection URL. An empty URL
// means the local SQLite file; anything unrecognized is PostgreSQL.
func DetectDriver(url string) Driver {
	switch {
	case url == "":
		return DriverSQLite
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"):
		return DriverSQLite
	}
	for _, ext := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(url, ext) {
			return DriverSQLite
		}
	}
	return DriverPostgres
}

var (
	// ErrNoRows is returned by drivers that have no native no-rows error.
	ErrNoRows = errors.New("no rows in result set")
	// ErrDriverNotRegistered is returned when the driver package was not
	// imported.
	ErrDriverNotRegistered = errors.New("database driver not registered")
)

// IsNoRows reports whether err means a lookup matched nothing, whichever
// driver produced it.
func IsNoRows(err error) bool {
	return err != nil && (errors.Is(err, pgx.ErrNoRows) ||
		errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, ErrNoRows))
}

// Config selects and configures a backend.
type Config struct {
	// Driver is postgres, sqlite, or empty/"auto" to detect it from URL.
	Driver Driver
	// URL is the PostgreSQL connection string.
	URL string
	// SQLitePath is the database file. Defaults to DefaultSQLitePath.
	SQLitePath string
	// MaxConns caps the PostgreSQL pool. Zero keeps the pool default.
	MaxConns int
}

// Opener opens a connection for a registered driver.
type Opener func(ctx context.Context, cfg Config) (Connection, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[Driver]Opener)
)

// Register makes a driver available to NewConnection.
func Register(driver Driver, open Opener) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[driver] = open
}

// NewConnection opens a connection with the configured driver.
func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" || driver == "auto" {
		driver = DetectDriver(cfg.URL)
	}
	if !driver.IsValid() {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	driversMu.RLock()
	open, ok := drivers[driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDriverNotRegistered, driver)
	}
	return open(ctx, cfg)
}

// DefaultSQLitePath returns ~/.almanac/data.db.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".almanac", "data.db")
}

// EnsureDirectory creates the parent directory of path.
func EnsureDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
