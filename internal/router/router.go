package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/venue-booking/internal/handler"    // handlers implementing the endpoints
	"github.com/iliyamo/venue-booking/internal/middleware" // JWT, role, rate limit and cache middleware
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// Guards bundles the middleware applied to protected routes.  RateLimit
// fronts the write endpoints that take seat locks; Cache fronts the admin
// health report.  Either may be a pass-through.
type Guards struct {
	JWTSecret string
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// RegisterBooking registers the customer and staff booking endpoints.
// Customer routes live under /v1 and accept OWNER and CUSTOMER tokens;
// staff routes live under /v1/admin and require OWNER.
func RegisterBooking(e *echo.Echo, h *handler.BookingHandler, g Guards) {
	pass := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	if g.RateLimit == nil {
		g.RateLimit = pass
	}
	if g.Cache == nil {
		g.Cache = pass
	}

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(g.JWTSecret))
	auth.Use(middleware.RequireRole(middleware.RoleOwner, middleware.RoleCustomer))

	auth.POST("/orders", h.CreateOrder, g.RateLimit)
	auth.GET("/orders/:id", h.GetOrder)
	auth.DELETE("/orders/:id", h.CancelOrder)
	auth.POST("/seats/lock", h.LockSeats, g.RateLimit)
	auth.POST("/seats/release", h.ReleaseSeats)

	admin := e.Group("/v1/admin")
	admin.Use(middleware.JWTAuth(g.JWTSecret))
	admin.Use(middleware.RequireRole(middleware.RoleOwner))

	admin.DELETE("/orders/:id", h.CancelOrderAsStaff)
	admin.GET("/health", h.Health, g.Cache)
	admin.POST("/cleanup", h.Cleanup)
}

// RegisterVenue registers the public zone catalogue and the staff zone
// endpoint.
func RegisterVenue(e *echo.Echo, v *handler.VenueHandler, g Guards) {
	e.GET("/v1/zones", v.ListZones)
	e.GET("/v1/zones/:id/seats", v.SeatMap)

	admin := e.Group("/v1/admin/zones")
	admin.Use(middleware.JWTAuth(g.JWTSecret))
	admin.Use(middleware.RequireRole(middleware.RoleOwner))
	admin.POST("", v.CreateZone)
}
