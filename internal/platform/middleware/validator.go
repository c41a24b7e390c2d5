package middleware

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// StructValidator adapts go-playground/validator to echo.Validator so
// handlers can call c.Validate on bound request bodies.
type StructValidator struct {
	v *validator.Validate
}

func NewValidator() *StructValidator {
	return &StructValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (sv *StructValidator) Validate(i interface{}) error {
	return sv.v.Struct(i)
}

var _ echo.Validator = (*StructValidator)(nil)
