package features

import (
	"context"
	"fmt"
	"os"
)

// SchemaLoadError reports a missing or corrupt schema artifact.
// There is no default schema, so callers treat it as fatal at start-up.
type SchemaLoadError struct {
	Source string
	Err    error
}

func (e *SchemaLoadError) Error() string {
	return fmt.Sprintf("failed to load feature schema from %s: %v", e.Source, e.Err)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Err
}

// SchemaStore provides the feature schema artifact produced by training
type SchemaStore interface {
	// Load returns the schema that inference must align to
	Load(ctx context.Context) (*Schema, error)
}

// FileSchemaStore reads the schema artifact from a JSON file
type FileSchemaStore struct {
	path string
}

// NewFileSchemaStore creates a file-backed SchemaStore
func NewFileSchemaStore(path string) *FileSchemaStore {
	return &FileSchemaStore{path: path}
}

// Load reads and validates the schema file
func (s *FileSchemaStore) Load(_ context.Context) (*Schema, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &SchemaLoadError{Source: s.path, Err: err}
	}

	schema, err := ParseSchema(data)
	if err != nil {
		return nil, &SchemaLoadError{Source: s.path, Err: err}
	}

	return schema, nil
}

// LoadSchemaFile is a shorthand for NewFileSchemaStore(path).Load
func LoadSchemaFile(path string) (*Schema, error) {
	return NewFileSchemaStore(path).Load(context.Background())
}
