package handlers

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// One validator for all handlers; it caches struct metadata internally.
var validate = validator.New()

// ValidateRequest checks a decoded request DTO against its validate tags and
// returns a message naming the first offending field. One error at a time
// keeps the response shape stable for clients.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return fmt.Errorf("validation failed: %s: %s", fe.Field(), describeFieldError(fe))
	}
	return fmt.Errorf("validation failed: %w", err)
}

// describeFieldError maps the tags the request DTOs actually use to plain
// messages. Anything unmapped falls through with the raw tag name.
func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "ip":
		return "must be a valid IP address"
	case "numeric":
		return "must contain only digits"
	case "alpha":
		return "must contain only letters"
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
