package rules

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/inboxd/internal/schema"
)

// Reason classifies a ValidationError.
type Reason string

const (
	ReasonRequired     Reason = "required"
	ReasonInvalidEnum  Reason = "invalid_enum"
	ReasonMustBeSingle Reason = "must_be_single"
	ReasonBadFormat    Reason = "bad_format"
	ReasonInvalidType  Reason = "invalid_type"
)

// ValidationError reports a candidate record that cannot be normalized.
type ValidationError struct {
	Kind   schema.Kind
	Field  string
	Reason Reason
	// Value is the offending raw value, nil for missing fields.
	Value any
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%s.%s: %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s.%s: %s (got %v)", e.Kind, e.Field, e.Reason, e.Value)
}

var (
	// ErrUnknownKind is returned for a schema kind the engine has no rules for.
	ErrUnknownKind = errors.New("unknown schema kind")

	// ErrNilSession is returned when a task is applied without a session.
	ErrNilSession = errors.New("session is required to finalize a task")
)

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
