package validator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// `param=<name>` checks a struct field against the named entry of the
	// parameter table, so request structs and raw maps share one rule set.
	_ = v.RegisterValidation("param", func(fl validator.FieldLevel) bool {
		return ValidateField(fl.Param(), fl.Field().Interface()) == nil
	})
	return v
}

// Validate validates a struct using go-playground/validator tags.
func Validate(s any) error {
	if err := validate.Struct(s); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return &ValidationError{Errors: validationErrors}
		}
		return err
	}
	return nil
}

// FieldViolation describes a single failed parameter constraint.
type FieldViolation struct {
	Field      string
	Constraint string
	Message    string
}

// ValidationError reports struct tag failures and parameter table
// violations in one shape.
type ValidationError struct {
	Errors     validator.ValidationErrors
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, err := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", err.Field(), msgForTag(err)))
	}
	for _, v := range e.Violations {
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", v.Field, v.Message))
	}
	return strings.Join(msgs, "; ")
}

// Fields returns a map of field names to error messages.
func (e *ValidationError) Fields() map[string]string {
	fields := make(map[string]string, len(e.Errors)+len(e.Violations))
	for _, err := range e.Errors {
		fields[err.Field()] = msgForTag(err)
	}
	for _, v := range e.Violations {
		fields[v.Field] = v.Message
	}
	return fields
}

// FieldNames returns the offending field names in sorted order.
func (e *ValidationError) FieldNames() []string {
	fields := e.Fields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "url", "uri":
		return "must be a valid URI"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "param":
		if err := ValidateField(fe.Param(), fe.Value()); err != nil {
			if ve, ok := err.(*ValidationError); ok && len(ve.Violations) > 0 {
				return ve.Violations[0].Message
			}
		}
		return fmt.Sprintf("violates the %s constraint", fe.Param())
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}

// DecodeAndValidate reads JSON from the request body, decodes it into dst,
// and validates it.
func DecodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return Validate(dst)
}
