package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/flowsurfer-web/internal/config"
)

// bodyRecorder tees the response into a bounded buffer while still writing
// it to the client.
type bodyRecorder struct {
	http.ResponseWriter
	status    int
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (r *bodyRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	if !r.truncated {
		if r.limit > 0 && int64(r.buf.Len()+len(b)) > r.limit {
			r.truncated = true
		} else {
			r.buf.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// cachedResponse is what gets stored in Redis.
type cachedResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

var errShortPayload = errors.New("cache payload too short")

// marshalBinary packs [4 bytes status][4 bytes headerLen][headerJSON][body].
func (r cachedResponse) marshalBinary() ([]byte, error) {
	hdr, err := json.Marshal(r.Header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8, 8+len(hdr)+len(r.Body))
	binary.BigEndian.PutUint32(out[0:4], uint32(r.Status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
	out = append(out, hdr...)
	return append(out, r.Body...), nil
}

func (r *cachedResponse) unmarshalBinary(bs []byte) error {
	if len(bs) < 8 {
		return errShortPayload
	}
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return errShortPayload
	}
	r.Status = int(binary.BigEndian.Uint32(bs[0:4]))
	r.Header = http.Header{}
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &r.Header); err != nil {
			return err
		}
	}
	r.Body = bs[8+hlen:]
	return nil
}

// cacheKeyFrom builds a stable key from the configured strategy.  Everything
// after the prefix is hashed so raw query strings never end up in key names.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	var tail []string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		tail = []string{"route", c.Path()}
	case "method_route":
		tail = []string{"method", r.Method, "route", c.Path()}
	case "method_route_query":
		tail = []string{"method", r.Method, "route", c.Path(), "q", r.URL.RawQuery}
	default: // "route_query"
		tail = []string{"route", c.Path(), "q", r.URL.RawQuery}
	}
	sum := sha1.Sum([]byte(strings.Join(tail, ":")))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// NewRedisCache replays stored 200 responses for the configured methods,
// headers included, and marks them with X-Cache: HIT.  Misses are recorded
// and stored for cfg.TTL.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	maxBody := int64(cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKeyFrom(cfg, c)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var hit cachedResponse
				if err := hit.unmarshalBinary(bs); err == nil {
					return replay(c, hit)
				}
			} else if !errors.Is(err, redis.Nil) {
				c.Logger().Warnf("[cache] redis get %s: %v", key, err)
			}

			rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.truncated || !storable(c.Response().Header()) {
				return nil
			}

			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			hdr.Del("Content-Length")
			for _, k := range []string{echo.HeaderXRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Key"} {
				hdr.Del(k)
			}
			payload, err := cachedResponse{Status: rec.status, Header: hdr, Body: rec.buf.Bytes()}.marshalBinary()
			if err != nil {
				return nil
			}
			// The request context may already be cancelled once the client has the response.
			if err := rdb.Set(context.WithoutCancel(ctx), key, payload, ttl).Err(); err != nil {
				c.Logger().Warnf("[cache] redis set %s: %v", key, err)
			}
			return nil
		}
	}
}

// storable reports whether the handler allowed its response to be shared.
func storable(h http.Header) bool {
	cc := strings.ToLower(h.Get(echo.HeaderCacheControl))
	return !strings.Contains(cc, "no-store") && !strings.Contains(cc, "private")
}

// replay writes a stored response.  Headers already set by earlier middleware
// (rate limit counters, request id) win over stored ones.
func replay(c echo.Context, hit cachedResponse) error {
	h := c.Response().Header()
	for k, vals := range hit.Header {
		if _, exists := h[k]; exists {
			continue
		}
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	h.Set("X-Cache", "HIT")
	c.Response().WriteHeader(hit.Status)
	if len(hit.Body) > 0 {
		_, err := c.Response().Write(hit.Body)
		return err
	}
	return nil
}
