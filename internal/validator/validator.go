package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator so services report field errors in
// one shape.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator instance.
func New() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate validates struct tags and returns a ValidationErrors value, or nil.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	return ToValidationErrors(err)
}

// FieldError describes a single failed field validation.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationErrors is the error type returned for failed struct validation.
type ValidationErrors []FieldError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(ve))
	for i, fe := range ve {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, "; ")
}

// ToValidationErrors converts go-playground errors into the local type.
func ToValidationErrors(err error) ValidationErrors {
	var out ValidationErrors

	if ves, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ves {
			out = append(out, FieldError{
				Field:   fe.Field(),
				Rule:    fe.Tag(),
				Message: fmt.Sprintf("field %s failed on rule %s", fe.Field(), fe.Tag()),
			})
		}
		return out
	}

	return ValidationErrors{{Field: "", Rule: "", Message: err.Error()}}
}
