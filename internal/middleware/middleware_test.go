package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/resource-booking/internal/config"
	"github.com/iliyamo/resource-booking/internal/model"
	"github.com/iliyamo/resource-booking/internal/utils"
)

const (
	secret = "test-secret"
	issuer = "resource-booking"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func do(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, u model.User) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, issuer, u, 5)
	require.NoError(t, err)
	return tok.Token
}

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	g := e.Group("", JWTAuth(secret, issuer))
	g.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"id": c.Get(CtxUserID), "role": c.Get(CtxRole)})
	})
	g.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireRole(model.RoleAdmin))

	user := token(t, model.User{ID: 3, Role: model.RoleUser})
	admin := token(t, model.User{ID: 1, Role: model.RoleAdmin})

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/me", "garbage").Code)

	rec := do(e, http.MethodGet, "/me", user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":3,"role":"USER"}`, rec.Body.String())

	assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/admin", user).Code)
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodGet, "/admin", admin).Code)
}

func pong(c echo.Context) error { return c.String(http.StatusOK, "pong") }

func TestRateLimiter_Bucket(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute,
		TTL: 10 * time.Minute, KeyStrategy: "ip_route", Prefix: "rl",
	}
	e := echo.New()
	e.GET("/ping", pong, NewRateLimiter(cfg, rdb).Bucket("bookings"))

	first := do(e, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/ping", "").Code)

	blocked := do(e, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	secs, err := strconv.Atoi(blocked.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, secs, 0)
	assert.LessOrEqual(t, secs, 60)
}

func TestRateLimiter_BucketsAreIndependent(t *testing.T) {
	mr, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 5, RefillTokens: 1, RefillInterval: time.Minute,
		TTL: 10 * time.Minute, KeyStrategy: "ip_user", Prefix: "rl",
		Buckets: map[string]int{"auth": 1},
	}
	limit := NewRateLimiter(cfg, rdb)
	e := echo.New()
	e.POST("/login", pong, limit.Bucket("auth"))
	e.GET("/bookings", pong, limit.Bucket("bookings"))

	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/login", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(e, http.MethodPost, "/login", "").Code)

	// an exhausted auth bucket leaves bookings untouched
	for i := 0; i < 5; i++ {
		rec := do(e, http.MethodGet, "/bookings", "")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	}
	assert.Equal(t, http.StatusTooManyRequests, do(e, http.MethodGet, "/bookings", "").Code)

	assert.True(t, mr.Exists("rl:auth:ip:192.0.2.1:user:anon"))
	assert.True(t, mr.Exists("rl:bookings:ip:192.0.2.1:user:anon"))
}

func TestRateLimiter_Refills(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second,
		TTL: time.Minute, KeyStrategy: "ip", Prefix: "rl",
	}
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	limit := NewRateLimiter(cfg, rdb)
	limit.now = func() time.Time { return now }
	e := echo.New()
	e.GET("/ping", pong, limit.Bucket("catalog"))

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/ping", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(e, http.MethodGet, "/ping", "").Code)

	now = now.Add(1500 * time.Millisecond)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/ping", "").Code)
}

func TestRateLimiter_PassThrough(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second}
	var nilLimiter *RateLimiter
	e := echo.New()
	e.GET("/a", pong, NewRateLimiter(cfg, nil).Bucket("auth"))
	e.GET("/b", pong, nilLimiter.Bucket("auth"))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/a", "").Code)
		assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/b", "").Code)
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute}
	e := echo.New()
	e.GET("/ping", pong, NewRateLimiter(cfg, rdb).Bucket("auth"))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/ping", "").Code)
	}
}

func TestRedisCache_HitAndPurge(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 20,
	}
	calls := 0
	e := echo.New()
	g := e.Group("/items", NewRedisCache(cfg, rdb, "catalog"))
	g.GET("/:id", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id"), "calls": calls})
	})
	g.DELETE("/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	miss := do(e, http.MethodGet, "/items/1", "")
	require.Equal(t, http.StatusOK, miss.Code)
	assert.Equal(t, "MISS", miss.Header().Get("X-Cache"))

	hit := do(e, http.MethodGet, "/items/1", "")
	require.Equal(t, http.StatusOK, hit.Code)
	assert.Equal(t, "HIT", hit.Header().Get("X-Cache"))
	assert.Equal(t, miss.Body.String(), hit.Body.String())
	assert.Equal(t, 1, calls)

	// another id is a different entry
	assert.Equal(t, "MISS", do(e, http.MethodGet, "/items/2", "").Header().Get("X-Cache"))

	require.Equal(t, http.StatusNoContent, do(e, http.MethodDelete, "/items/1", "").Code)
	after := do(e, http.MethodGet, "/items/1", "")
	assert.Equal(t, "MISS", after.Header().Get("X-Cache"))
	assert.Equal(t, 3, calls)
}

func TestRedisCache_DisabledWithoutClient(t *testing.T) {
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "x") }, NewRedisCache(cfg, nil, "catalog"))

	rec := do(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}
