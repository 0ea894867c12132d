package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Greeting is the body returned by GET /api/hello.
const Greeting = "Welcome to FlowSurfer Web!"

// Hello writes the greeting as text/plain.  It reads nothing from the request
// and touches no shared state, so it is safe under any level of concurrency.
func Hello(c echo.Context) error {
	return c.String(http.StatusOK, Greeting)
}
