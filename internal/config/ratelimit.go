package config

import "time"

// RateLimitConfig parameterizes one Redis token bucket.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string // ip, user, route, ip_user, ip_route, user_route, ip_user_route
	Prefix         string
	Message        string // returned with 429
	Debug          bool
}

// GlobalRateLimitDefaults allows 100 requests per IP every 15 minutes.
func GlobalRateLimitDefaults() RateLimitConfig {
	return RateLimitConfig{
		Enabled:        true,
		Capacity:       100,
		RefillTokens:   100,
		RefillInterval: 15 * time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "rl",
		Message:        "Too many requests from this IP, please try again later.",
	}
}

// AuthRateLimitDefaults allows 5 signup or login attempts per IP every 15
// minutes.
func AuthRateLimitDefaults() RateLimitConfig {
	return RateLimitConfig{
		Enabled:        true,
		Capacity:       5,
		RefillTokens:   5,
		RefillInterval: 15 * time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "rl:auth",
		Message:        "Too many authentication attempts, please try again later.",
	}
}

// LoadRateLimitConfig overlays <prefix>_* variables on def.
func LoadRateLimitConfig(prefix string, def RateLimitConfig) RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool(prefix+"_ENABLED", def.Enabled),
		Capacity:       envInt(prefix+"_CAPACITY", def.Capacity),
		RefillTokens:   envInt(prefix+"_REFILL_TOKENS", def.RefillTokens),
		RefillInterval: envDur(prefix+"_REFILL_INTERVAL", def.RefillInterval),
		TTL:            envDur(prefix+"_TTL", def.TTL),
		KeyStrategy:    envStr(prefix+"_KEY_STRATEGY", def.KeyStrategy),
		Prefix:         envStr(prefix+"_PREFIX", def.Prefix),
		Message:        def.Message,
		Debug:          envBool(prefix+"_DEBUG", def.Debug),
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if minTTL := 2 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	return cfg
}
