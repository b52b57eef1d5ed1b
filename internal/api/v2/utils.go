package api

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sonoscan/sonoscan/internal/errors"
)

// parseIDParam reads the :id path parameter as a positive integer.
func parseIDParam(ctx echo.Context) (uint, error) {
	raw := ctx.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.ValidationError("api", "invalid id "+strconv.Quote(raw))
	}
	return uint(id), nil
}

// intQuery reads an integer query parameter. A missing value yields def; anything
// outside [lo, hi] is a validation error.
func intQuery(ctx echo.Context, name string, def, lo, hi int) (int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, errors.ValidationError("api",
			name+" must be an integer between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
	}
	return v, nil
}

// floatQuery is intQuery for decimals.
func floatQuery(ctx echo.Context, name string, def, lo, hi float64) (float64, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < lo || v > hi {
		return 0, errors.ValidationError("api",
			name+" must be a number between "+strconv.FormatFloat(lo, 'g', -1, 64)+
				" and "+strconv.FormatFloat(hi, 'g', -1, 64))
	}
	return v, nil
}

// boolForm reads a form flag. A missing value yields def.
func boolForm(ctx echo.Context, name string, def bool) (bool, error) {
	raw := ctx.FormValue(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.ValidationError("api", name+" must be true or false")
	}
	return v, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
