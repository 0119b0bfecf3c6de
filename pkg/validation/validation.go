// Package validation wraps go-playground/validator for request bodies and
// holds the size limits the HTTP boundary enforces.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "certify/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize caps JSON request bodies.
	MaxBodySize = 64 * 1024

	// MaxDocumentSize is the default cap for uploaded documents.
	MaxDocumentSize = 10 << 20
)

// Field length limits. Empty values are accepted everywhere.
const (
	MaxIdentityKeyLength = 256
	MaxNameLength        = 512
	MaxProgramLength     = 512
	MaxPeriodLength      = 64
	MaxDigestLength      = 512
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate validates a struct using the default validator and returns a domain error.
func Validate(req any) error {
	if err := defaultValidator.Struct(req); err != nil {
		return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
	}
	return nil
}

// identityKeyRule is the tag every identity key is checked against, whether
// it arrives in a body, a path or a query string. max counts runes.
var identityKeyRule = fmt.Sprintf("max=%d", MaxIdentityKeyLength)

// ValidateIdentityKey applies the body rule for identity_key to a key taken
// from anywhere else in the request.
func ValidateIdentityKey(key string) error {
	if err := defaultValidator.Var(key, identityKeyRule); err != nil {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("identity_key must be at most %d characters", MaxIdentityKeyLength))
	}
	return nil
}

// ErrorMessage converts a validator error into a human-readable message
// naming the first offending JSON field.
func ErrorMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "invalid request body"
	}

	fe := validationErrs[0]
	field := fe.Field()

	switch fe.ActualTag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		if field == "" {
			return "invalid request body"
		}
		return fmt.Sprintf("%s is invalid", field)
	}
}
