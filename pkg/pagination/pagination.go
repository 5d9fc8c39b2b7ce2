package pagination

import (
	"net/http"
	"strconv"

	"github.com/horike37/serverless-application/pkg/validator"
)

// Params holds the limit/page pair accepted by list endpoints.
type Params struct {
	Limit  int `json:"limit"`
	Page   int `json:"page"`
	Offset int `json:"-"`
}

// DefaultParams returns page 1 with the given limit.
func DefaultParams(limit int) Params {
	return Params{Limit: limit, Page: 1}
}

// New builds Params from already-parsed values, applying defaults for
// zero values and validating both against the parameter table.
func New(limit, page, defaultLimit int) (Params, error) {
	if limit == 0 {
		limit = defaultLimit
	}
	if page == 0 {
		page = 1
	}
	if err := validator.ValidateField("limit", limit); err != nil {
		return Params{}, err
	}
	if err := validator.ValidateField("page", page); err != nil {
		return Params{}, err
	}
	return Params{Limit: limit, Page: page, Offset: (page - 1) * limit}, nil
}

// FromRequest reads `limit` and `page` from the query string. Absent values
// take the defaults; present but invalid values are rejected.
func FromRequest(r *http.Request, defaultLimit int) (Params, error) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		return Params{}, err
	}
	page, err := queryInt(q.Get("page"), "page")
	if err != nil {
		return Params{}, err
	}
	return New(limit, page, defaultLimit)
}

func queryInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &validator.ValidationError{Violations: []validator.FieldViolation{{
			Field:      name,
			Constraint: "type",
			Message:    "must be an integer",
		}}}
	}
	if v == 0 {
		// An explicit zero is out of range, not "use the default".
		return 0, validator.ValidateField(name, v)
	}
	return v, nil
}
