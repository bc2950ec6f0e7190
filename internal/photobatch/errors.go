package photobatch

import "fmt"

// ConfigurationError reports an invalid selector configuration.
// It is returned by NewSelector, never by Select.
type ConfigurationError struct {
	Field  string
	Reason string
	Value  int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("photobatch: invalid %s=%d: %s", e.Field, e.Value, e.Reason)
}

// InputShapeError reports a malformed photo record: a missing id or
// upload timestamp, or an id already used by an earlier record.
type InputShapeError struct {
	Field     string
	Index     int
	Duplicate bool
}

func (e *InputShapeError) Error() string {
	if e.Duplicate {
		return fmt.Sprintf("photobatch: photo at position %d repeats an earlier %q", e.Index, e.Field)
	}
	return fmt.Sprintf("photobatch: photo at position %d is missing required field %q", e.Index, e.Field)
}
