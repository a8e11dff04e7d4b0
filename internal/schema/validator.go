// Package schema validates outbound events before they leave the service.
package schema

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidEvent is returned for events that fail validation.
var ErrInvalidEvent = errors.New("schema: invalid event")

// Validator checks events against their struct tags.
type Validator struct {
	v *validator.Validate
}

// New creates a validator.
func New() *Validator {
	return &Validator{v: validator.New()}
}

// Validate returns nil for a valid event, or ErrInvalidEvent wrapping the
// failed fields.
func (v *Validator) Validate(event any) error {
	err := v.v.Struct(event)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %v", ErrInvalidEvent, fields)
	}
	return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
}
