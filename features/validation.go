package features

import (
	"fmt"
	"strings"
)

// MaxColumns bounds the size of a schema artifact
const MaxColumns = 10000

// ValidateColumns validates the column list of a schema artifact.
// Returns an error if validation fails, nil if the columns are usable.
func ValidateColumns(columns []string) error {
	// A model always has at least one input
	if len(columns) == 0 {
		return fmt.Errorf("schema cannot be empty, must contain at least one column")
	}

	if len(columns) > MaxColumns {
		return fmt.Errorf("schema contains %d columns, maximum allowed is %d", len(columns), MaxColumns)
	}

	seen := make(map[string]int, len(columns))
	for i, name := range columns {
		if err := validateColumnName(name); err != nil {
			return fmt.Errorf("invalid column %d %q: %w", i, name, err)
		}

		// Duplicates would make name-based alignment ambiguous
		if first, dup := seen[name]; dup {
			return fmt.Errorf("column %q appears at positions %d and %d", name, first, i)
		}
		seen[name] = i
	}

	return nil
}

// validateColumnName checks a single encoded column name
func validateColumnName(name string) error {
	if name == "" {
		return fmt.Errorf("column name cannot be empty")
	}

	if strings.TrimSpace(name) != name {
		return fmt.Errorf("column name has leading/trailing whitespace")
	}

	if strings.ContainsAny(name, "\n\r\t") {
		return fmt.Errorf("column name contains control characters")
	}

	return nil
}
