package middleware

// identity.go holds the context keys set by JWTAuth and the helpers that
// read them back.

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys populated by JWTAuth.
const (
	UserIDKey = "user_id"
	RoleKey   = "role"
)

// ErrNoUser is returned by UserID when the request carries no usable
// subject claim.
var ErrNoUser = errors.New("invalid user_id in context")

// UserID returns the authenticated user's id.  JSON numbers decode as
// float64, so every numeric form is accepted, as are decimal strings.
func UserID(c echo.Context) (uint64, error) {
	switch t := c.Get(UserIDKey).(type) {
	case uint64:
		return t, nil
	case int:
		if t > 0 {
			return uint64(t), nil
		}
	case int64:
		if t > 0 {
			return uint64(t), nil
		}
	case float64:
		if t > 0 {
			return uint64(t), nil
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, ErrNoUser
}

// Role returns the authenticated user's role or "".
func Role(c echo.Context) string {
	r, _ := c.Get(RoleKey).(string)
	return r
}

// rateKeyUser renders the user for rate limit keys; anonymous callers
// share one bucket per IP.
func rateKeyUser(c echo.Context) string {
	if id, err := UserID(c); err == nil {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
