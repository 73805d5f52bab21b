package middleware // middleware provides shared request processing for handlers

import (
	"net/http" // http package defines standard HTTP status codes

	"github.com/labstack/echo/v4" // echo provides middleware chaining and context
)

// Roles carried in the JWT role claim.
const (
	RoleOwner    = "OWNER"
	RoleCustomer = "CUSTOMER"
)

// RequireRole returns a middleware function that enforces that the
// authenticated user has one of the specified roles.  It assumes JWTAuth
// ran first.  Any other role, or none, is answered with 403 Forbidden.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Role(c)] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
