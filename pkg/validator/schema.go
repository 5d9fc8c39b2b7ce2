package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Type is the JSON type a parameter must have.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeArray   Type = "array"
)

// FormatURI marks a string parameter that must parse as an absolute URI.
const FormatURI = "uri"

// Constraint is the declared rule set for one named request parameter.
// Zero values mean "unconstrained" except where a pointer is used to tell an
// absent bound from a bound of zero.
type Constraint struct {
	Type            Type
	MinLength       int
	MaxLength       int
	Minimum         *float64
	Maximum         *float64
	Pattern         *regexp.Regexp
	ForbidSubstring string
	Format          string
	MaxItems        int
	Items           *Constraint
}

// uriValidate backs the uri format check. It is kept apart from the struct
// validator so the `param` tag can call into this file.
var uriValidate = validator.New()

func bound(v float64) *float64 { return &v }

func anchored(expr string) *regexp.Regexp {
	return regexp.MustCompile(`^(?:` + expr + `)$`)
}

// Parameters is the platform-wide table of request parameters. Every
// request-shaped input is checked against entries of this table by name.
var Parameters = map[string]Constraint{
	"limit":      {Type: TypeInteger, Minimum: bound(1), Maximum: bound(100)},
	"article_id": {Type: TypeString, MinLength: 12, MaxLength: 12},
	// Go regexp has no lookahead, so "no double hyphen" is a separate check.
	"user_id": {
		Type:            TypeString,
		MinLength:       3,
		MaxLength:       30,
		Pattern:         anchored(`[a-zA-Z0-9][a-zA-Z0-9-]+[a-zA-Z0-9]`),
		ForbidSubstring: "--",
	},
	"line_id": {Type: TypeString},
	"phone_number": {
		Type:      TypeString,
		MinLength: 13,
		MaxLength: 13,
		Pattern:   anchored(`\+81[6-9]0\d{8}`),
	},
	"icon_image":        {Type: TypeString, MaxLength: 8388608},
	"evaluated_at":      {Type: TypeInteger, Minimum: bound(1), Maximum: bound(2147483647000000)},
	"sort_key":          {Type: TypeInteger, Minimum: bound(1), Maximum: bound(2147483647000000)},
	"score":             {Type: TypeInteger, Minimum: bound(1), Maximum: bound(2147483647000000)},
	"title":             {Type: TypeString, MaxLength: 255},
	"body":              {Type: TypeString, MaxLength: 65535},
	"article_image":     {Type: TypeString, MaxLength: 8388608},
	"eye_catch_url":     {Type: TypeString, Format: FormatURI, MaxLength: 2048},
	"overview":          {Type: TypeString, MaxLength: 100},
	"user_display_name": {Type: TypeString, MinLength: 1, MaxLength: 30},
	"self_introduction": {Type: TypeString, MaxLength: 100},
	"notification_id":   {Type: TypeString, MaxLength: 80},
	"comment_text":      {Type: TypeString, MinLength: 1, MaxLength: 400},
	"comment_id":        {Type: TypeString, MinLength: 12, MaxLength: 12},
	"page":              {Type: TypeInteger, Minimum: bound(1), Maximum: bound(100000)},
	"query":             {Type: TypeString, MinLength: 1, MaxLength: 150},
	"topic":             {Type: TypeString, MinLength: 1, MaxLength: 20},
	"tag":               {Type: TypeString, MinLength: 1, MaxLength: 25},
	"tags": {
		Type:     TypeArray,
		MaxItems: 5,
		Items:    &Constraint{Type: TypeString, MinLength: 1, MaxLength: 25},
	},
	"tip_value":      {Type: TypeNumber, Minimum: bound(1), Maximum: bound(1e24)},
	"oauth_token":    {Type: TypeString},
	"oauth_verifier": {Type: TypeString},
}

// Schema describes one request shape: the accepted properties and which of
// them are required. Properties outside the schema are rejected.
type Schema struct {
	Properties map[string]Constraint
	Required   []string
}

// Object builds a Schema from entries of the Parameters table.
// It panics on an unknown name since schemas are declared at init time.
func Object(required []string, names ...string) Schema {
	props := make(map[string]Constraint, len(names))
	for _, name := range names {
		c, ok := Parameters[name]
		if !ok {
			panic(fmt.Sprintf("validator: unknown parameter %q", name))
		}
		props[name] = c
	}
	for _, name := range required {
		if _, ok := props[name]; !ok {
			panic(fmt.Sprintf("validator: required parameter %q is not a property", name))
		}
	}
	return Schema{Properties: props, Required: required}
}

// ValidateParams checks input against the schema and fails on the first
// violation. Unknown fields are reported first, then missing required
// fields, then constraint failures in field-name order.
func ValidateParams(s Schema, input map[string]any) error {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, ok := s.Properties[k]; !ok {
			return violation(k, "additionalProperties", "is not an accepted parameter")
		}
	}
	for _, name := range s.Required {
		if _, ok := input[name]; !ok {
			return violation(name, "required", "is required")
		}
	}
	for _, k := range keys {
		if v := check(k, s.Properties[k], input[k]); v != nil {
			return &ValidationError{Violations: []FieldViolation{*v}}
		}
	}
	return nil
}

// ValidateField checks a single value against the named parameter.
func ValidateField(name string, value any) error {
	c, ok := Parameters[name]
	if !ok {
		return violation(name, "additionalProperties", "is not an accepted parameter")
	}
	if v := check(name, c, value); v != nil {
		return &ValidationError{Violations: []FieldViolation{*v}}
	}
	return nil
}

func violation(field, constraint, msg string) *ValidationError {
	return &ValidationError{Violations: []FieldViolation{{Field: field, Constraint: constraint, Message: msg}}}
}

func check(field string, c Constraint, value any) *FieldViolation {
	fail := func(constraint, format string, args ...any) *FieldViolation {
		return &FieldViolation{Field: field, Constraint: constraint, Message: fmt.Sprintf(format, args...)}
	}

	switch c.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return fail("type", "must be a string")
		}
		n := utf8.RuneCountInString(s)
		if c.MinLength > 0 && n < c.MinLength {
			return fail("minLength", "must be at least %d characters", c.MinLength)
		}
		if c.MaxLength > 0 && n > c.MaxLength {
			return fail("maxLength", "must be at most %d characters", c.MaxLength)
		}
		if c.Pattern != nil && !c.Pattern.MatchString(s) {
			return fail("pattern", "does not match the required pattern")
		}
		if c.ForbidSubstring != "" && strings.Contains(s, c.ForbidSubstring) {
			return fail("pattern", "must not contain %q", c.ForbidSubstring)
		}
		if c.Format == FormatURI && uriValidate.Var(s, "uri") != nil {
			return fail("format", "must be a valid URI")
		}
	case TypeInteger, TypeNumber:
		f, ok := toFloat(value)
		if !ok {
			return fail("type", "must be a %s", c.Type)
		}
		if c.Type == TypeInteger && f != math.Trunc(f) {
			return fail("type", "must be an integer")
		}
		if c.Minimum != nil && f < *c.Minimum {
			return fail("minimum", "must be greater than or equal to %s", formatBound(*c.Minimum))
		}
		if c.Maximum != nil && f > *c.Maximum {
			return fail("maximum", "must be less than or equal to %s", formatBound(*c.Maximum))
		}
	case TypeArray:
		rv := reflect.ValueOf(value)
		if value == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return fail("type", "must be an array")
		}
		if c.MaxItems > 0 && rv.Len() > c.MaxItems {
			return fail("maxItems", "must have at most %d items", c.MaxItems)
		}
		if c.Items != nil {
			for i := 0; i < rv.Len(); i++ {
				if v := check(fmt.Sprintf("%s[%d]", field, i), *c.Items, rv.Index(i).Interface()); v != nil {
					return v
				}
			}
		}
	}
	return nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func formatBound(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e18 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
