// Package migrations resolves the embedded schema trees, one per storage
// dialect, and hands the selected one to the persistence layer.
package migrations

import (
	"fmt"
	"io/fs"
	"strings"

	watchrelay "github.com/watchrelay/watchrelay"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	embeddedRoot = "data/sql/migrations"
)

// Filesystem is one dialect's migration tree.
type Filesystem struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Filesystems returns the embedded migration trees. The postgres scripts
// sit at the root of the tree with the sqlite variants under sqlite/.
// Every tree must carry at least one *.up.sql file.
func Filesystems() ([]Filesystem, error) {
	base, err := fs.Sub(watchrelay.GetMigrationsFS(), embeddedRoot)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", embeddedRoot, err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []Filesystem{
		{Dialect: DialectPostgres, Path: embeddedRoot, FS: base},
		{Dialect: DialectSQLite, Path: embeddedRoot + "/sqlite", FS: sqliteFS},
	}
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", entry.Dialect, entry.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", entry.Dialect, entry.Path)
		}
	}
	return filesystems, nil
}

// ForDialect returns the migration tree for a single dialect.
func ForDialect(dialect string) (Filesystem, error) {
	dialect = strings.TrimSpace(strings.ToLower(dialect))
	filesystems, err := Filesystems()
	if err != nil {
		return Filesystem{}, err
	}
	for _, entry := range filesystems {
		if entry.Dialect == dialect {
			return entry, nil
		}
	}
	return Filesystem{}, fmt.Errorf("migrations: no filesystem for dialect %q", dialect)
}

// Register resolves the dialect's tree and passes it to registerFn.
func Register(dialect string, registerFn func(fs.FS) error) error {
	if registerFn == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	entry, err := ForDialect(dialect)
	if err != nil {
		return err
	}
	if err := registerFn(entry.FS); err != nil {
		return fmt.Errorf("migrations: register %s (%s): %w", entry.Dialect, entry.Path, err)
	}
	return nil
}
