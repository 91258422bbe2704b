package core

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"advisy/internal/types"
)

// Validator wraps go-playground/validator and translates tag failures into
// structured AppErrors with per-field details.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a new Validator and registers custom validation tags.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// email_template restricts a field to the closed template enum.
	_ = v.RegisterValidation("email_template", func(fl validator.FieldLevel) bool {
		return types.ValidEmailTemplate(types.EmailTemplate(fl.Field().String()))
	})

	return &Validator{v: v}
}

// ValidateStruct validates the struct's `validate` tags. On failure it
// returns an AppError (400) whose details map field names to the failed rule.
func (val *Validator) ValidateStruct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewAppError(types.ErrCodeValidationBody, "request validation failed", err)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fmt.Sprintf("failed %q validation", fe.Tag())
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"one or more fields are invalid",
		err,
		details,
	)
}
