package middleware

// identity.go holds helpers shared by the rate limiter and the access log for
// identifying the caller: the client IP and what JWTAuth stored in the echo
// context.

import "github.com/labstack/echo/v4"

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// currentUserID returns the authenticated subject, or "anon" when the request
// did not pass through JWTAuth.
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}

// ClientIP returns the IP extractor for echo.Echo.IPExtractor.  Without a
// trusted proxy the peer address is used and X-Forwarded-For / X-Real-IP are
// ignored, so clients cannot pick their own rate-limit bucket.  With
// trustProxy the right-most untrusted X-Forwarded-For entry is used, trusting
// loopback and private ranges as proxies.
func ClientIP(trustProxy bool) echo.IPExtractor {
	if trustProxy {
		return echo.ExtractIPFromXFFHeader()
	}
	return echo.ExtractIPDirect()
}
