package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/venue-booking/internal/config"
)

// cachedResponse is what one cache entry holds.
type cachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// bodyRecorder tees the response into a bounded buffer.
type bodyRecorder struct {
	http.ResponseWriter
	status    int
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (w *bodyRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	if w.limit > 0 && w.buf.Len()+len(b) > w.limit {
		w.truncated = true
	} else if !w.truncated {
		w.buf.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// cacheKey hashes the caller, and the route and query as selected by the
// key strategy.  The user is always part of the key so one operator
// never sees a response rendered for another.
func cacheKey(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	parts := []string{"user", rateKeyUser(c)}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		parts = append(parts, "route", c.Path())
	case "method_route":
		parts = append(parts, "method", r.Method, "route", c.Path())
	case "method_route_query":
		parts = append(parts, "method", r.Method, "route", c.Path(), "q", r.URL.RawQuery)
	default:
		parts = append(parts, "route", c.Path(), "q", r.URL.RawQuery)
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum)
}

func replay(c echo.Context, cr cachedResponse) error {
	for k, vals := range cr.Header {
		if strings.EqualFold(k, echo.HeaderContentLength) {
			continue
		}
		for _, v := range vals {
			c.Response().Header().Add(k, v)
		}
	}
	c.Response().Header().Set("X-Cache", "HIT")
	c.Response().WriteHeader(cr.Status)
	_, err := c.Response().Write(cr.Body)
	return err
}

// NewRedisCache serves repeated GETs of the admin health report from Redis
// for a few seconds.  Only 200 responses that fit in MaxBodyBytes are
// stored.  Without Redis, or when disabled, it passes requests through.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKey(cfg, c)

			if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var cr cachedResponse
				if json.Unmarshal(raw, &cr) == nil && cr.Status != 0 {
					return replay(c, cr)
				}
			} else if err != redis.Nil {
				logrus.WithError(err).WithField("key", key).Debug("cache: lookup failed")
			}

			rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.truncated {
				return nil
			}
			payload, err := json.Marshal(cachedResponse{
				Status: rec.status,
				Header: c.Response().Header().Clone(),
				Body:   rec.buf.Bytes(),
			})
			if err != nil {
				return nil
			}
			if err := rdb.SetEx(context.WithoutCancel(ctx), key, payload, ttl).Err(); err != nil {
				logrus.WithError(err).WithField("key", key).Debug("cache: store failed")
			}
			return nil
		}
	}
}
