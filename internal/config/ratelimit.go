package config

import (
	"strings"
	"time"
)

// RateLimitConfig configures one Redis token bucket.  Each protected route
// group (auth, checkout, card tokenization) loads its own scope so that
// the expensive endpoints can be throttled harder than the rest.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// LoadRateLimitConfig reads the global RATE_LIMIT_* variables and then
// applies RATE_LIMIT_<SCOPE>_* overrides when scope is not empty, e.g.
// RATE_LIMIT_CHECKOUT_CAPACITY=5.
func LoadRateLimitConfig(scope string) RateLimitConfig {
	def := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if scope != "" {
		p := "RATE_LIMIT_" + strings.ToUpper(scope) + "_"
		def.Capacity = envInt(p+"CAPACITY", def.Capacity)
		def.RefillTokens = envInt(p+"REFILL_TOKENS", def.RefillTokens)
		def.RefillInterval = envDur(p+"REFILL_INTERVAL", def.RefillInterval)
		def.KeyStrategy = envStr(p+"KEY_STRATEGY", def.KeyStrategy)
		def.Prefix = def.Prefix + ":" + strings.ToLower(scope)
	}
	return def.normalized()
}

func (c RateLimitConfig) normalized() RateLimitConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c
}
