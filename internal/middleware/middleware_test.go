package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flowsurfer-web/internal/config"
	"github.com/iliyamo/flowsurfer-web/internal/queue"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return s, rdb
}

func serve(e *echo.Echo, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestTokenBucket_BlocksAfterCapacity(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: 10 * time.Hour, KeyStrategy: "ip", Prefix: "rl",
	}
	e := echo.New()
	e.GET("/api/hello", func(c echo.Context) error { return c.String(http.StatusOK, "hi") }, NewTokenBucket(cfg, rdb))

	first := serve(e, http.MethodGet, "/api/hello", nil)
	second := serve(e, http.MethodGet, "/api/hello", nil)
	third := serve(e, http.MethodGet, "/api/hello", nil)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.JSONEq(t, `{"error":"too_many_requests","message":"rate limit exceeded","retry_after":3600}`, third.Body.String())
	assert.Equal(t, "3600", third.Header().Get("Retry-After"))
}

func TestTokenBucket_FailsOpenWhenRedisDown(t *testing.T) {
	s, rdb := newRedis(t)
	s.Close()

	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(cfg, rdb))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/x", nil).Code)
	}
}

func TestTokenBucket_DisabledIsPassThrough(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil))

	rec := serve(e, http.MethodGet, "/x", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/hello")
	c.Set("user_id", "ops@flowsurfer.dev")

	cases := map[string]string{
		"ip":            "rl:ip:203.0.113.9",
		"user":          "rl:user:ops@flowsurfer.dev",
		"route":         "rl:route:GET /api/hello",
		"ip_route":      "rl:ip:203.0.113.9:route:GET /api/hello",
		"ip_user_route": "rl:ip:203.0.113.9:user:ops@flowsurfer.dev:route:GET /api/hello",
	}
	for strategy, want := range cases {
		cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}
		assert.Equal(t, want, buildRateKey(cfg, c), strategy)
	}
}

func TestClientIP_IgnoresForwardedHeadersByDefault(t *testing.T) {
	e := echo.New()
	e.IPExtractor = ClientIP(false)
	sink := &recordingSink{accept: true}
	e.GET("/api/hello", func(c echo.Context) error { return c.String(http.StatusOK, buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip"}, c)) }, AccessLog(sink))

	rec := serve(e, http.MethodGet, "/api/hello", map[string]string{
		echo.HeaderXForwardedFor: "203.0.113.50",
		echo.HeaderXRealIP:       "203.0.113.51",
	})

	assert.Equal(t, "rl:ip:192.0.2.1", rec.Body.String())
	require.Len(t, sink.events, 1)
	assert.Equal(t, "192.0.2.1", sink.events[0].RemoteIP)
}

func TestClientIP_TrustedProxy(t *testing.T) {
	e := echo.New()
	e.IPExtractor = ClientIP(true)
	e.GET("/ip", func(c echo.Context) error { return c.String(http.StatusOK, c.RealIP()) })

	req := httptest.NewRequest(http.MethodGet, "/ip", nil)
	req.RemoteAddr = "10.0.0.5:4000"
	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.50")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "203.0.113.50", rec.Body.String())
}

func TestTokenBucket_ForgedForwardedForSharesBucket(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour, TTL: time.Hour, Prefix: "rl", KeyStrategy: "ip"}
	e := echo.New()
	e.IPExtractor = ClientIP(false)
	e.GET("/api/hello", func(c echo.Context) error { return c.String(http.StatusOK, "hi") }, NewTokenBucket(cfg, rdb))

	codes := make([]int, 0, 3)
	for _, forged := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		codes = append(codes, serve(e, http.MethodGet, "/api/hello", map[string]string{echo.HeaderXForwardedFor: forged}).Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRedisCache_SkipsNoStoreAndPrivate(t *testing.T) {
	s, rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache"}
	e := echo.New()
	mw := NewRedisCache(cfg, rdb)
	calls := 0
	for path, directive := range map[string]string{"/a": "no-store", "/b": "private, max-age=60"} {
		e.GET(path, func(c echo.Context) error {
			calls++
			c.Response().Header().Set(echo.HeaderCacheControl, directive)
			return c.String(http.StatusOK, "fresh")
		}, mw)
	}

	for i := 0; i < 2; i++ {
		assert.Equal(t, "MISS", serve(e, http.MethodGet, "/a", nil).Header().Get("X-Cache"))
		assert.Equal(t, "MISS", serve(e, http.MethodGet, "/b", nil).Header().Get("X-Cache"))
	}
	assert.Equal(t, 4, calls)
	assert.Empty(t, s.Keys())
}

func TestRedisCache_MissThenHit(t *testing.T) {
	_, rdb := newRedis(t)
	calls := 0
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache"}
	e := echo.New()
	e.GET("/api/hello", func(c echo.Context) error {
		calls++
		return c.String(http.StatusOK, "Welcome")
	}, NewRedisCache(cfg, rdb))

	miss := serve(e, http.MethodGet, "/api/hello", nil)
	hit := serve(e, http.MethodGet, "/api/hello", nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, "MISS", miss.Header().Get("X-Cache"))
	assert.Equal(t, "HIT", hit.Header().Get("X-Cache"))
	assert.Equal(t, http.StatusOK, hit.Code)
	assert.Equal(t, "Welcome", hit.Body.String())
	assert.Equal(t, miss.Header().Get(echo.HeaderContentType), hit.Header().Get(echo.HeaderContentType))
}

func TestRedisCache_SkipsNonOKAndOtherMethods(t *testing.T) {
	s, rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache"}
	e := echo.New()
	mw := NewRedisCache(cfg, rdb)
	e.GET("/missing", func(c echo.Context) error { return c.String(http.StatusNotFound, "nope") }, mw)
	e.POST("/submit", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, mw)

	serve(e, http.MethodGet, "/missing", nil)
	post := serve(e, http.MethodPost, "/submit", nil)

	assert.Empty(t, s.Keys())
	assert.Empty(t, post.Header().Get("X-Cache"))
}

func TestRedisCache_SkipsOversizedBodies(t *testing.T) {
	s, rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 4}
	e := echo.New()
	e.GET("/big", func(c echo.Context) error { return c.String(http.StatusOK, "0123456789") }, NewRedisCache(cfg, rdb))

	rec := serve(e, http.MethodGet, "/big", nil)

	assert.Equal(t, "0123456789", rec.Body.String())
	assert.Empty(t, s.Keys())
}

func TestCachedResponse_RejectsShortPayload(t *testing.T) {
	var r cachedResponse

	assert.ErrorIs(t, r.unmarshalBinary([]byte{0, 0, 0}), errShortPayload)
	assert.ErrorIs(t, r.unmarshalBinary([]byte{0, 0, 0, 200, 0, 0, 1, 0}), errShortPayload)
}

func signed(t *testing.T, secret string, claims jwt.MapClaims, method jwt.SigningMethod) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuthAndRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/admin", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get("user_id").(string))
	}, JWTAuth("secret"), RequireRole("ADMIN"))

	exp := time.Now().Add(time.Minute).Unix()
	admin := signed(t, "secret", jwt.MapClaims{"sub": "ops", "role": "ADMIN", "exp": exp}, jwt.SigningMethodHS256)
	viewer := signed(t, "secret", jwt.MapClaims{"sub": "guest", "role": "VIEWER", "exp": exp}, jwt.SigningMethodHS256)
	forged := signed(t, "other", jwt.MapClaims{"sub": "ops", "role": "ADMIN", "exp": exp}, jwt.SigningMethodHS256)
	noExp := signed(t, "secret", jwt.MapClaims{"sub": "ops", "role": "ADMIN"}, jwt.SigningMethodHS256)

	tests := []struct {
		name   string
		header string
		code   int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, `{"error":"missing bearer token"}`},
		{"wrong signature", "Bearer " + forged, http.StatusUnauthorized, `{"error":"invalid token"}`},
		{"no expiry", "Bearer " + noExp, http.StatusUnauthorized, `{"error":"invalid token"}`},
		{"wrong role", "Bearer " + viewer, http.StatusForbidden, `{"error":"forbidden"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(e, http.MethodGet, "/admin", map[string]string{"Authorization": tc.header})
			assert.Equal(t, tc.code, rec.Code)
			assert.JSONEq(t, tc.body, rec.Body.String())
		})
	}

	rec := serve(e, http.MethodGet, "/admin", map[string]string{"Authorization": "Bearer " + admin})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops", rec.Body.String())
}

type recordingSink struct {
	mu     sync.Mutex
	events []queue.AccessEvent
	accept bool
}

func (s *recordingSink) Enqueue(ev queue.AccessEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.accept
}

func TestAccessLog(t *testing.T) {
	sink := &recordingSink{accept: true}
	e := echo.New()
	e.Use(AccessLog(sink))
	e.GET("/api/hello", func(c echo.Context) error { return c.String(http.StatusOK, "hi") })

	serve(e, http.MethodGet, "/api/hello", map[string]string{
		"User-Agent": "curl/8.5", echo.HeaderXRequestID: "rid-7", echo.HeaderXRealIP: "198.51.100.4",
	})
	serve(e, http.MethodGet, "/api/Hello", nil)
	serve(e, http.MethodPost, "/api/hello", nil)

	require.Len(t, sink.events, 3)

	ok := sink.events[0]
	assert.Equal(t, "GET", ok.Method)
	assert.Equal(t, "/api/hello", ok.Route)
	assert.Equal(t, 200, ok.Status)
	assert.Equal(t, "curl/8.5", ok.UserAgent)
	assert.Equal(t, "rid-7", ok.RequestID)
	assert.Equal(t, "198.51.100.4", ok.RemoteIP)
	_, err := time.Parse(time.RFC3339Nano, ok.OccurredAt)
	assert.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, sink.events[1].Status)
	assert.Equal(t, "/api/Hello", sink.events[1].Path)
	assert.Equal(t, http.StatusMethodNotAllowed, sink.events[2].Status)
}

func TestAccessLog_NilSink(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, AccessLog(nil))

	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/x", nil).Code)
}
