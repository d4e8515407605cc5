package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	integrationmigrations "github.com/goliatone/go-integrations/migrations"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite3"
)

type databaseConfig struct {
	driver string
	dsn    string
	debug  bool
}

func (c databaseConfig) GetDebug() bool                { return c.debug }
func (c databaseConfig) GetDriver() string             { return c.driver }
func (c databaseConfig) GetServer() string             { return c.dsn }
func (c databaseConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c databaseConfig) GetOtelIdentifier() string     { return "integrationsd" }

func normalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pg":
		return driverPostgres, nil
	case "sqlite", "sqlite3", "":
		return driverSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// openDatabase opens the persistence client and registers the migrations
// for its dialect. Migrations are applied only when migrate is set.
func openDatabase(ctx context.Context, cfg databaseConfig, migrate bool) (*persistence.Client, error) {
	driver, err := normalizeDriver(cfg.driver)
	if err != nil {
		return nil, err
	}
	cfg.driver = driver
	if strings.TrimSpace(cfg.dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	var (
		dialect          schema.Dialect
		migrationDialect string
	)
	switch driver {
	case driverPostgres:
		dialect = pgdialect.New()
		migrationDialect = integrationmigrations.DialectPostgres
	default:
		dialect = sqlitedialect.New()
		migrationDialect = integrationmigrations.DialectSQLite
	}

	sqlDB, err := sql.Open(driver, cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == driverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}

	if _, err := integrationmigrations.Register(ctx, func(_ context.Context, source integrationmigrations.Source) error {
		client.RegisterSQLMigrations(source.FS)
		return nil
	}, migrationDialect); err != nil {
		_ = client.Close()
		return nil, err
	}

	if migrate {
		if err := client.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return client, nil
}
