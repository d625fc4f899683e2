package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/liamcoop/riskscore/features"
	"github.com/liamcoop/riskscore/internal/logger"
)

func main() {
	var databaseURL string
	var migrationsPath string
	var command string
	var schemaPath string

	flag.StringVar(&databaseURL, "database", "", "Database URL (required)")
	flag.StringVar(&migrationsPath, "path", "migrations", "Path to migrations directory")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, steps, version, force, publish-schema")
	flag.StringVar(&schemaPath, "schema", "artifacts/feature_schema.json", "Feature schema artifact for publish-schema")
	flag.Parse()

	// Check for database URL from flag or environment
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	if databaseURL == "" {
		logger.Fatal("database URL is required, use -database flag or DATABASE_URL environment variable")
	}

	// Publishing works on an already migrated database
	if command == "publish-schema" {
		schema, err := publishSchema(context.Background(), databaseURL, schemaPath)
		if err != nil {
			logger.Fatal("failed to publish feature schema", "path", schemaPath, "error", err)
		}
		logger.Info("feature schema published", "version", schema.Version(), "columns", schema.Len())
		return
	}

	logger.Info("connecting to database", "migrationsPath", migrationsPath)

	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		databaseURL,
	)
	if err != nil {
		logger.Fatal("failed to create migration instance", "error", err)
	}
	defer m.Close()

	switch command {
	case "up":
		logger.Info("running migrations up")
		err = m.Up()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to run migrations", "error", err)
		}
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to run, database is up to date")
		} else {
			logger.Info("migrations completed")
		}

	case "down":
		logger.Info("rolling back migrations")
		err = m.Down()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to roll back migrations", "error", err)
		}
		logger.Info("rollback completed")

	case "steps":
		n, err := versionArg()
		if err != nil {
			logger.Fatal("steps command requires a signed step count: -command steps <n>", "error", err)
		}
		if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to apply steps", "steps", n, "error", err)
		}
		logger.Info("steps applied", "steps", n)

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			logger.Fatal("failed to get version", "error", err)
		}
		logger.Info("current version", "version", version, "dirty", dirty)

	case "force":
		version, err := versionArg()
		if err != nil {
			logger.Fatal("force command requires a version number: -command force <version>", "error", err)
		}
		if err := m.Force(version); err != nil {
			logger.Fatal("failed to force version", "error", err)
		}
		logger.Info("forced version", "version", version)

	default:
		logger.Fatal("unknown command (use: up, down, steps, version, force, publish-schema)", "command", command)
	}
}

func versionArg() (int, error) {
	if len(flag.Args()) < 1 {
		return 0, errors.New("missing argument")
	}
	return strconv.Atoi(flag.Arg(0))
}

// publishSchema stores the schema artifact at path as the active version the
// server loads with SCHEMA_SOURCE=postgres
func publishSchema(ctx context.Context, databaseURL, path string) (*features.Schema, error) {
	schema, err := features.LoadSchemaFile(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := features.NewPostgresSchemaStore(db).Save(ctx, schema); err != nil {
		return nil, err
	}
	return schema, nil
}
