// Package validation binds request payloads and checks them.
//
// Rules live in `validate` struct tags; payloads implement Validatable,
// usually by calling Struct, and may add checks of their own by
// returning CustomValidationErrors.
package validation

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Struct validates v against its struct tags.
func Struct(v any) error {
	return Validator().Struct(v)
}
