package survey

import "fmt"

// MalformedRecordError reports a missing or out-of-domain answer
type MalformedRecordError struct {
	Field  string
	Value  any
	Reason string
}

func (e *MalformedRecordError) Error() string {
	switch {
	case e.Field == "":
		return fmt.Sprintf("malformed record: %s", e.Reason)
	case e.Value == nil:
		return fmt.Sprintf("malformed record: field %q: %s", e.Field, e.Reason)
	default:
		return fmt.Sprintf("malformed record: field %q value %v: %s", e.Field, e.Value, e.Reason)
	}
}
