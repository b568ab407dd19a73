package api

import (
	"github.com/go-playground/validator/v10"

	"fleetchat/pkg/errors"
)

type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	return &CustomValidator{
		validator: validator.New(),
	}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return errors.Validation("Request validation failed", err)
	}
	return nil
}
