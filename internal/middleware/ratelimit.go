package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/resource-booking/internal/config"
)

// takeScript stores a bucket as a hash {t: tokens, at: last refill ms}.
// KEYS[1] bucket; ARGV now_ms, capacity, refill, interval_ms, ttl_s.
// Replies {allowed, tokens_left, wait_ms}.
var takeScript = redis.NewScript(`
local cap = tonumber(ARGV[2])
local now = tonumber(ARGV[1])
local step = tonumber(ARGV[4])
local h = redis.call('HMGET', KEYS[1], 't', 'at')
local t = tonumber(h[1]) or cap
local at = tonumber(h[2]) or now
if now > at then
  local n = math.floor((now - at) / step)
  if n > 0 then
    t = math.min(cap, t + n * tonumber(ARGV[3]))
    at = at + n * step
  end
end
local ok, wait = 0, 0
if t >= 1 then
  ok = 1
  t = t - 1
else
  wait = math.max(0, at + step - now)
end
redis.call('HSET', KEYS[1], 't', t, 'at', at)
redis.call('EXPIRE', KEYS[1], math.max(1, tonumber(ARGV[5])))
return {ok, t, wait}
`)

// RateLimiter hands out Redis token buckets per route group.  A nil
// client or a disabled config turns every bucket into a pass-through.
type RateLimiter struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
	now func() time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client) *RateLimiter {
	return &RateLimiter{cfg: cfg, rdb: rdb, now: time.Now}
}

type decision struct {
	allowed bool
	left    int64
	wait    time.Duration
}

func (l *RateLimiter) take(ctx context.Context, key string, capacity int) (decision, error) {
	step := l.cfg.RefillInterval
	if step <= 0 {
		step = time.Second
	}
	raw, err := takeScript.Run(ctx, l.rdb, []string{key},
		l.now().UnixMilli(), capacity, l.cfg.RefillTokens, step.Milliseconds(), int64(l.cfg.TTL/time.Second),
	).Int64Slice()
	if err != nil {
		return decision{}, err
	}
	if len(raw) != 3 {
		return decision{}, fmt.Errorf("ratelimit: script replied %v", raw)
	}
	return decision{allowed: raw[0] == 1, left: raw[1], wait: time.Duration(raw[2]) * time.Millisecond}, nil
}

// Bucket limits the routes it wraps against the named bucket.  Buckets
// never share tokens, so login attempts cannot drain the booking quota.
// Blocked requests get 429 with Retry-After; Redis errors let the
// request through.
func (l *RateLimiter) Bucket(name string) echo.MiddlewareFunc {
	if l == nil || !l.cfg.Enabled || l.rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	capacity := l.cfg.CapacityFor(name)
	limit := strconv.Itoa(capacity)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := l.key(name, c)
			d, err := l.take(c.Request().Context(), key, capacity)
			logger := log.WithFields(log.Fields{"bucket": name, "key": key})
			if err != nil {
				logger.WithError(err).Warn("ratelimit: allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.left, 10))
			if l.cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if d.allowed {
				return next(c)
			}

			secs := int((d.wait + time.Second - 1) / time.Second)
			if secs < 1 {
				secs = 1
			}
			h.Set("Retry-After", strconv.Itoa(secs))
			if l.cfg.Debug {
				logger.WithField("wait", d.wait).Info("ratelimit: blocked")
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

// key is prefix:bucket followed by the caller identity the strategy
// selects.  Anonymous callers share the "anon" user slot.
func (l *RateLimiter) key(bucket string, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	user := "anon"
	if id, ok := c.Get(CtxUserID).(uint64); ok && id != 0 {
		user = strconv.FormatUint(id, 10)
	}

	b := strings.Builder{}
	b.WriteString(l.cfg.Prefix)
	b.WriteString(":" + bucket)
	strategy := strings.ToLower(l.cfg.KeyStrategy)
	if strings.Contains(strategy, "ip") || strategy == "" {
		b.WriteString(":ip:" + ip)
	}
	if strings.Contains(strategy, "user") || strategy == "" {
		b.WriteString(":user:" + user)
	}
	if strings.Contains(strategy, "route") {
		b.WriteString(":route:" + c.Request().Method + " " + c.Path())
	}
	return b.String()
}
