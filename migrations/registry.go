// Package migrations serves the integration schema for each supported SQL
// dialect so hosts can hand it to their migrator.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	integrations "github.com/goliatone/go-integrations"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	SourceLabel = "go-integrations"

	rootDir = "data/sql/migrations"
)

// Versions lists the schema migrations every dialect carries, oldest first.
var Versions = []string{
	"00001_integrations",
	"00002_oauth_connect_attempts",
	"00003_automations",
	"00004_async_requests",
}

// Source is the migration tree of one dialect.
type Source struct {
	Dialect string
	Dir     string
	FS      fs.FS
}

type RegisterFunc func(ctx context.Context, source Source) error

// NormalizeDialect maps driver spellings to a dialect name.
func NormalizeDialect(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported dialect %q", name)
	}
}

// Sources returns the postgres and sqlite trees of root, or of the embedded
// schema when root is nil. Each tree must hold an up and a down file for
// every entry in Versions.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = integrations.GetMigrationsFS()
	}
	postgres, err := fs.Sub(root, rootDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootDir, err)
	}
	sqlite, err := fs.Sub(postgres, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Dir: rootDir, FS: postgres},
		{Dialect: DialectSQLite, Dir: rootDir + "/sqlite", FS: sqlite},
	}
	for _, source := range sources {
		if err := checkVersions(source); err != nil {
			return nil, err
		}
	}
	return sources, nil
}

// ForDialect returns the embedded tree for one dialect.
func ForDialect(dialect string) (Source, error) {
	name, err := NormalizeDialect(dialect)
	if err != nil {
		return Source{}, err
	}
	sources, err := Sources(nil)
	if err != nil {
		return Source{}, err
	}
	for _, source := range sources {
		if source.Dialect == name {
			return source, nil
		}
	}
	return Source{}, fmt.Errorf("migrations: no tree for dialect %q", name)
}

// Register passes the embedded tree of each named dialect to fn, every
// dialect when none is named. It returns the sources it registered.
func Register(ctx context.Context, fn RegisterFunc, dialects ...string) ([]Source, error) {
	if fn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	sources, err := Sources(nil)
	if err != nil {
		return nil, err
	}

	wanted := map[string]bool{}
	for _, dialect := range dialects {
		name, err := NormalizeDialect(dialect)
		if err != nil {
			return nil, err
		}
		wanted[name] = true
	}

	registered := make([]Source, 0, len(sources))
	for _, source := range sources {
		if len(wanted) > 0 && !wanted[source.Dialect] {
			continue
		}
		if err := fn(ctx, source); err != nil {
			return registered, fmt.Errorf("migrations: register %s: %w", source.Dialect, err)
		}
		registered = append(registered, source)
	}
	return registered, nil
}

func checkVersions(source Source) error {
	for _, version := range Versions {
		for _, direction := range []string{".up.sql", ".down.sql"} {
			name := version + direction
			content, err := fs.ReadFile(source.FS, name)
			if err != nil {
				return fmt.Errorf("migrations: %s tree is missing %s: %w", source.Dialect, name, err)
			}
			if strings.TrimSpace(string(content)) == "" {
				return fmt.Errorf("migrations: %s %s is empty", source.Dialect, name)
			}
		}
	}
	return nil
}
