package features

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Schema is the ordered list of one-hot feature columns produced at training time.
// A Schema is immutable once built and safe to share between goroutines.
type Schema struct {
	version string
	columns []string
	index   map[string]int
}

// Artifact is the serialized form of a Schema shared by training and inference
type Artifact struct {
	Version string   `json:"version"`
	Columns []string `json:"columns"`
}

// NewSchema validates the columns and builds a Schema
func NewSchema(version string, columns []string) (*Schema, error) {
	if err := ValidateColumns(columns); err != nil {
		return nil, err
	}

	s := &Schema{
		version: version,
		columns: make([]string, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	copy(s.columns, columns)
	for i, name := range s.columns {
		s.index[name] = i
	}

	return s, nil
}

// ParseSchema decodes a schema artifact. Both the versioned object form and a
// bare JSON array of column names are accepted.
func ParseSchema(data []byte) (*Schema, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("schema artifact is empty")
	}

	var artifact Artifact
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &artifact.Columns); err != nil {
			return nil, fmt.Errorf("failed to decode column list: %w", err)
		}
	} else {
		if err := json.Unmarshal(trimmed, &artifact); err != nil {
			return nil, fmt.Errorf("failed to decode schema artifact: %w", err)
		}
	}

	return NewSchema(artifact.Version, artifact.Columns)
}

// Columns returns a copy of the ordered feature names
func (s *Schema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Len returns the number of feature columns
func (s *Schema) Len() int {
	return len(s.columns)
}

// Index returns the position of a column, or false when the column is unknown
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Version returns the artifact version, empty for unversioned artifacts
func (s *Schema) Version() string {
	return s.version
}

// Artifact returns the serializable form of the schema
func (s *Schema) Artifact() Artifact {
	return Artifact{Version: s.version, Columns: s.Columns()}
}

// MarshalJSON encodes the schema as its artifact
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Artifact())
}
