package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"net/http" // net/http provides status codes and response helpers
	"time"

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
	"github.com/redis/go-redis/v9"
)

// Health is a simple health‑check endpoint used by load balancers and
// monitoring systems to verify that the service is running.  It returns
// a plain text "ok" message with an HTTP 200 status code.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ReadyHandler reports whether the optional backing services answer.  A nil
// dependency is reported as "disabled" and never fails the check.
type ReadyHandler struct {
	DB      Pinger
	Redis   *redis.Client
	Timeout time.Duration
}

type readyResp struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Ready pings every configured dependency and answers 503 if any is down.
func (h *ReadyHandler) Ready(c echo.Context) error {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	resp := readyResp{Status: "ready", Checks: map[string]string{"mysql": "disabled", "redis": "disabled"}}
	if h.DB != nil {
		resp.Checks["mysql"] = "up"
		if err := h.DB.PingContext(ctx); err != nil {
			c.Logger().Warnf("readyz: mysql ping failed: %v", err)
			resp.Checks["mysql"] = "down"
			resp.Status = "degraded"
		}
	}
	if h.Redis != nil {
		resp.Checks["redis"] = "up"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			c.Logger().Warnf("readyz: redis ping failed: %v", err)
			resp.Checks["redis"] = "down"
			resp.Status = "degraded"
		}
	}

	code := http.StatusOK
	if resp.Status != "ready" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}
