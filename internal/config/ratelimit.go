package config

import (
	"strings"
	"time"
)

// RateLimitBuckets names the route groups that get a bucket of their own.
var RateLimitBuckets = []string{"auth", "users", "catalog", "bookings"}

// RateLimitConfig drives middleware.RateLimiter.  Every route group
// draws from its own bucket; Buckets overrides Capacity per group.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string // ip, user, ip_user, ip_user_route
	Prefix         string
	Debug          bool
	Buckets        map[string]int
}

// CapacityFor returns the capacity of bucket.
func (c RateLimitConfig) CapacityFor(bucket string) int {
	if n, ok := c.Buckets[bucket]; ok && n > 0 {
		return n
	}
	return c.Capacity
}

func loadRateLimitConfig(e *env) RateLimitConfig {
	def := RateLimitConfig{
		Enabled:        e.boolean("RATE_LIMIT_ENABLED", true),
		Capacity:       e.integer("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   e.integer("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: e.duration("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            e.duration("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    e.str("RATE_LIMIT_KEY_STRATEGY", "ip_user"),
		Prefix:         e.str("RATE_LIMIT_PREFIX", "rl"),
		Debug:          e.boolean("RATE_LIMIT_DEBUG", false),
		Buckets:        map[string]int{},
	}
	if b := e.integer("RATE_LIMIT_BURST", -1); b > 0 {
		def.Capacity = b
	}
	if every := e.duration("RATE_LIMIT_REFILL_EVERY", 0); every > 0 {
		def.RefillTokens = 1
		def.RefillInterval = every
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	// login and register are the brute-force surface
	authDefault := 10
	if def.Capacity < authDefault {
		authDefault = def.Capacity
	}
	for _, name := range RateLimitBuckets {
		d := 0
		if name == "auth" {
			d = authDefault
		}
		if n := e.integer("RATE_LIMIT_"+strings.ToUpper(name)+"_CAPACITY", d); n > 0 {
			def.Buckets[name] = n
		}
	}
	// keep buckets around long enough to refill completely
	if minTTL := 5 * def.RefillInterval; def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}
