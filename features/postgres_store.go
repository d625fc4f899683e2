package features

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresSchemaStore implements SchemaStore backed by the feature_schemas table.
// Training publishes a new version with Save; inference reads the active row once.
type PostgresSchemaStore struct {
	db *sql.DB
}

// NewPostgresSchemaStore creates a new PostgreSQL-backed SchemaStore
func NewPostgresSchemaStore(db *sql.DB) *PostgresSchemaStore {
	return &PostgresSchemaStore{db: db}
}

// Load returns the active schema
func (s *PostgresSchemaStore) Load(ctx context.Context) (*Schema, error) {
	var version string
	var columnsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT version, columns
		FROM feature_schemas
		WHERE active = true
	`).Scan(&version, &columnsJSON)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &SchemaLoadError{Source: "postgres", Err: fmt.Errorf("no active feature schema")}
	}
	if err != nil {
		return nil, &SchemaLoadError{Source: "postgres", Err: fmt.Errorf("failed to query feature schema: %w", err)}
	}

	var columns []string
	if err := json.Unmarshal(columnsJSON, &columns); err != nil {
		return nil, &SchemaLoadError{Source: "postgres", Err: fmt.Errorf("invalid columns for version %s: %w", version, err)}
	}

	schema, err := NewSchema(version, columns)
	if err != nil {
		return nil, &SchemaLoadError{Source: "postgres", Err: fmt.Errorf("version %s: %w", version, err)}
	}

	return schema, nil
}

// Save stores schema as the active version, deactivating the previous one
func (s *PostgresSchemaStore) Save(ctx context.Context, schema *Schema) error {
	if schema.Version() == "" {
		return fmt.Errorf("schema version is required")
	}

	columnsJSON, err := json.Marshal(schema.Columns())
	if err != nil {
		return fmt.Errorf("failed to marshal columns: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE feature_schemas
		SET active = false
		WHERE active = true
	`); err != nil {
		return fmt.Errorf("failed to deactivate old schemas: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO feature_schemas (version, columns, active, created_at)
		VALUES ($1, $2, true, NOW())
	`, schema.Version(), columnsJSON); err != nil {
		return fmt.Errorf("failed to insert schema %s: %w", schema.Version(), err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema %s: %w", schema.Version(), err)
	}

	return nil
}
