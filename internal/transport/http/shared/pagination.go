package shared

import (
	"fmt"
	"net/http"
	"strconv"
)

type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset from the query. Malformed values
// are reported to v; a limit above maxLimit is clamped.
func ParsePagination(r *http.Request, v *Validator, defaultLimit, maxLimit int) Pagination {
	limit := defaultLimit
	offset := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		} else {
			v.Add("limit", "must be a positive integer")
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		} else {
			v.Add("offset", "must be a non-negative integer")
		}
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return Pagination{Limit: limit, Offset: offset}
}

// ParseYear reads a path or query year, reporting anything that is not an
// integer in [minYear, maxYear].
func ParseYear(v *Validator, field, raw string, minYear, maxYear int) int {
	year, err := strconv.Atoi(raw)
	if err != nil {
		v.Add(field, "must be an integer")
		return 0
	}
	if year < minYear || year > maxYear {
		v.Add(field, fmt.Sprintf("must be between %d and %d", minYear, maxYear))
	}
	return year
}

// ParseBool reads an optional boolean query value.
func ParseBool(v *Validator, field, raw string) *bool {
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		v.Add(field, "must be true or false")
		return nil
	}
	return &b
}
