package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flowsurfer-web/internal/queue"
)

// EventSink accepts access events without blocking.  *service.Publisher
// satisfies it.
type EventSink interface {
	Enqueue(ev queue.AccessEvent) bool
}

// AccessLog reports every request that passes through it to sink once the
// downstream handler has finished.  The status of a returned echo.HTTPError
// is used when the handler did not commit a response itself.
func AccessLog(sink EventSink) echo.MiddlewareFunc {
	if sink == nil {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			res := c.Response()
			ev := queue.AccessEvent{
				Method:     req.Method,
				Route:      c.Path(),
				Path:       req.URL.Path,
				Status:     responseStatus(res, err),
				LatencyMS:  time.Since(start).Milliseconds(),
				RemoteIP:   c.RealIP(),
				UserAgent:  req.UserAgent(),
				RequestID:  requestID(c),
				OccurredAt: start.UTC().Format(time.RFC3339Nano),
			}
			if !sink.Enqueue(ev) {
				c.Logger().Debugf("[accesslog] buffer full, dropped %s %s", ev.Method, ev.Path)
			}
			return err
		}
	}
}

func responseStatus(res *echo.Response, err error) int {
	if res.Committed || err == nil {
		return res.Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func requestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
