package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/flowsurfer-web/internal/handler"    // import the handlers that implement each endpoint
	"github.com/iliyamo/flowsurfer-web/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers the public routes on the provided Echo instance.
// apiMiddleware (rate limiting, caching) applies to /api routes only, so the
// liveness check is never throttled or cached.
//
// Requests that match no route get echo's 404, and a known path with the
// wrong method gets 405 with an Allow header.  Middleware is attached per
// route rather than with Group.Use: a group with middleware registers a
// catch-all that would turn those 405s into 404s.
//
// d may be nil when no database is configured; the diagram routes are then
// left out.
func RegisterRoutes(e *echo.Echo, d *handler.DiagramHandler, apiMiddleware ...echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health)

	api := e.Group("/api")
	api.GET("/hello", handler.Hello, apiMiddleware...)

	if d == nil {
		return
	}
	api.POST("/diagrams", d.Create, apiMiddleware...)
	api.GET("/diagrams", d.List, apiMiddleware...)
	api.GET("/diagrams/:id", d.Get, apiMiddleware...)
}

// RegisterReadiness exposes GET /readyz, which pings MySQL and Redis.
func RegisterReadiness(e *echo.Echo, h *handler.ReadyHandler) {
	e.GET("/readyz", h.Ready)
}

// RegisterAdmin registers the login endpoint and the JWT-protected admin
// group.  s may be nil when no database is configured; the stats route is
// then left out.
func RegisterAdmin(e *echo.Echo, a *handler.AuthHandler, s *handler.StatsHandler, jwtSecret string) {
	e.POST("/v1/auth/login", a.Login)

	if s == nil {
		return
	}
	guard := []echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret), middleware.RequireRole(handler.AdminRole)}
	admin := e.Group("/v1/admin")
	admin.GET("/stats", s.Stats, guard...)
}
