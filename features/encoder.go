package features

import (
	"fmt"
	"slices"
	"strconv"
)

// Vector is an encoded feature vector aligned to a Schema
type Vector []float64

// ColumnName builds the one-hot column name for a field/value pair.
// Training derives its dummy columns with the same "<field>_<value>" convention.
func ColumnName(field string, value any) string {
	return field + "_" + formatValue(value)
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// numericValue reports the value of a numeric answer
func numericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	}
	return 0, false
}

// column resolves the schema column a field/value pair lands in.
// A numeric answer whose field is itself a column (training kept it as a
// number) fills that column with the value. Every other pair is one-hot.
func column(field string, value any, schema *Schema) (name string, x float64, ok bool) {
	if n, isNum := numericValue(value); isNum {
		if _, found := schema.Index(field); found {
			return field, n, true
		}
	}
	name = ColumnName(field, value)
	_, ok = schema.Index(name)
	return name, 1.0, ok
}

// Encode converts one raw answer record into a vector aligned to schema.
//
// Every position starts at 0.0. A numeric answer is copied into a column named
// after its field when the schema has one. Otherwise the "<field>_<value>"
// column is set to 1.0. Columns the schema does not know (categories unseen at
// training time) are dropped, so an unseen value encodes exactly like an
// omitted field.
func Encode(raw map[string]any, schema *Schema) Vector {
	vec := make(Vector, schema.Len())
	for field, value := range raw {
		if value == nil {
			continue
		}
		if name, x, ok := column(field, value, schema); ok {
			i, _ := schema.Index(name)
			vec[i] = x
		}
	}
	return vec
}

// Explanation lists the columns a record produced, split by whether the schema knows them
type Explanation struct {
	Matched []string `json:"matched"`
	Dropped []string `json:"dropped"`
}

// Explain reports which constructed columns were matched and which were dropped
func Explain(raw map[string]any, schema *Schema) Explanation {
	var e Explanation
	for field, value := range raw {
		if value == nil {
			continue
		}
		if name, _, ok := column(field, value, schema); ok {
			e.Matched = append(e.Matched, name)
		} else {
			e.Dropped = append(e.Dropped, ColumnName(field, value))
		}
	}
	slices.Sort(e.Matched)
	slices.Sort(e.Dropped)
	return e
}
