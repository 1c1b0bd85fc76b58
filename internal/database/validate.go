package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the struct tags and reports the first failing field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fmt.Sprintf("rule '%s' failed", fe.Tag())
		if fe.Param() != "" {
			reason = fmt.Sprintf("rule '%s' expected '%s', got '%v'", fe.Tag(), fe.Param(), fe.Value())
		}
		return &ValidationError{Field: strings.ToLower(fe.StructField()), Reason: reason}
	}
	return &ValidationError{Field: "record", Reason: err.Error()}
}

// ValidateEntity checks that an entity carries the fields the store requires.
func ValidateEntity(e apptype.Entity) error {
	if strings.TrimSpace(e.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must be a non-empty string"}
	}
	if strings.TrimSpace(e.Type) == "" {
		return &ValidationError{Field: "type", Reason: "must be a non-empty string"}
	}
	return validateStruct(e)
}

// ValidateRecord checks an identifier record before it is turned into an entity.
func ValidateRecord(r apptype.IdentifierRecord) error {
	return ValidateEntity(r.Entity())
}

// ValidateSuspect checks a manual suspect assertion.
func ValidateSuspect(s apptype.SuspectAssertion) error {
	if strings.TrimSpace(s.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must be a non-empty string"}
	}
	return validateStruct(s)
}
