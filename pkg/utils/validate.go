package utils

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct-tag validation on value.
func Validate[T any](value T) (T, error) {
	if err := validate.Struct(value); err != nil {
		return value, validationErrorToString(value, err)
	}

	return value, nil
}

func validationErrorToString(input any, err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		msg := ""
		for _, fe := range verrs {
			msg += fmt.Sprintf("\n • Failed %T validation for field '%s': rule '%s' expected '%s', got '%v'.", input, fe.StructField(), fe.Tag(), fe.Param(), fe.Value())
		}
		return errors.New(msg)
	}

	return err
}
