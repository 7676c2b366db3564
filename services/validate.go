package services

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"messenger/errors"
)

var validate = validator.New()

// validateCommand checks a tagged command struct at the service boundary,
// before any authorization or crypto work.
func validateCommand(cmd any) error {
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidationFailed, err)
	}
	return nil
}
