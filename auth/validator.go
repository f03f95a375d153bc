package auth

import (
	"bourracho/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Credentials are checked before any expensive cryptographic operation.
// 72 is the longest password worth hashing.
type Credentials struct {
	Username string `validate:"required,min=1,max=64"`
	Password string `validate:"required,min=8,max=72"`
}

func ValidateCredentials(c Credentials) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	return nil
}
