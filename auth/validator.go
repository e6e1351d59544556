package auth

import (
	stderrors "errors"
	"fmt"
	"unicode"

	"panel-lab/errors"

	"github.com/go-playground/validator/v10"
)

var validate = newValidate()

// newValidate registers the "complex" tag: at least one upper case letter,
// one lower case letter, one digit and one symbol.
func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("complex", func(fl validator.FieldLevel) bool {
		var upper, lower, digit, symbol bool
		for _, r := range fl.Field().String() {
			switch {
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsLower(r):
				lower = true
			case unicode.IsNumber(r):
				digit = true
			case unicode.IsPunct(r) || unicode.IsSymbol(r):
				symbol = true
			}
		}
		return upper && lower && digit && symbol
	})
	return v
}

// Passwords are capped at 72 bytes, the longest input most KDF front ends accept.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=12,max=72,complex"`
	DisplayName string `json:"displayName" validate:"required,max=64"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ValidateRegister reports a weak password as ErrInvalidPassword and any
// other problem as ErrInvalidPayload.
func ValidateRegister(req RegisterRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if stderrors.As(err, &fields) {
		for _, field := range fields {
			if field.Field() == "Password" {
				return fmt.Errorf("%w: %s", errors.ErrInvalidPassword, field.Tag())
			}
		}
		return fmt.Errorf("%w: %s failed on %s", errors.ErrInvalidPayload, fields[0].Field(), fields[0].Tag())
	}
	return err
}

func ValidateLogin(req LoginRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}
