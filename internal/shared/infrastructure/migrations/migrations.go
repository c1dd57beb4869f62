// Package migrations embeds the schema for every supported database driver.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

// Files returns the up migrations for driver in execution order.
func Files(driver database.Driver) ([]string, error) {
	dir := driver.String()
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("no migrations for driver %s: %w", driver, err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, dir+"/"+entry.Name())
		}
	}
	sort.Strings(upFiles)
	return upFiles, nil
}

// Run executes all migrations for the connection's driver in order. Every
// statement is idempotent, so running them against an existing schema is
// a no-op.
func Run(ctx context.Context, conn database.Connection) error {
	files, err := Files(conn.Driver())
	if err != nil {
		return err
	}

	for _, file := range files {
		migration, err := migrationsFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		if _, err := conn.Exec(ctx, string(migration)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", file, err)
		}
	}

	return nil
}
