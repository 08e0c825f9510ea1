package ratelimit

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Exact path, or a prefix when it ends in "/"
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// DefaultEndpointConfigs returns the per-endpoint limits of the control API.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Browser-driving messages; feed scrapes walk the whole page.
		{Path: "/message", Method: "POST", Limit: 120, Window: time.Minute, Burst: 20},
		// Event streams are long-lived, so new connections are rare.
		{Path: "/events", Method: "GET", Limit: 30, Window: time.Minute, Burst: 5},
		{Path: "/resumes", Method: "DELETE", Limit: 10, Window: time.Minute, Burst: 2},
		{Path: "/runs/", Method: "GET", Limit: 300, Window: time.Minute, Burst: 30},
	}
}

// LoadConfig reads the limiter settings from the environment:
//
//	RATE_LIMIT_ENABLED           true | false (default true)
//	RATE_LIMIT_DEFAULT_LIMIT     requests per window for unlisted endpoints (1000)
//	RATE_LIMIT_DEFAULT_WINDOW    window for unlisted endpoints (1m)
//	RATE_LIMIT_CLEANUP_INTERVAL  how often idle buckets are swept (5m)
//	RATE_LIMIT_IDLE_TTL          idle time before a bucket is dropped (1h)
//	RATE_LIMIT_WHITELIST         comma-separated client IPs never limited
//	RATE_LIMIT_BLACKLIST         comma-separated client IPs always refused
//	RATE_LIMIT_ENDPOINTS         overrides, e.g. "POST /message=60/1m:10, GET /events=10/1m"
//
// Malformed values are logged and the default is kept.
func LoadConfig() *Config {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) *Config {
	env := envReader{getenv: getenv}
	cfg := &Config{Enabled: env.bool("RATE_LIMIT_ENABLED", true)}
	if !cfg.Enabled {
		return cfg
	}

	cfg.DefaultLimit = env.int("RATE_LIMIT_DEFAULT_LIMIT", 1000)
	cfg.DefaultWindow = env.duration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute)
	cfg.CleanupInterval = env.duration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute)
	cfg.IdleTTL = env.duration("RATE_LIMIT_IDLE_TTL", time.Hour)
	cfg.Whitelist = parseIPList(getenv("RATE_LIMIT_WHITELIST"))
	cfg.Blacklist = parseIPList(getenv("RATE_LIMIT_BLACKLIST"))

	cfg.EndpointConfigs = DefaultEndpointConfigs()
	if raw := getenv("RATE_LIMIT_ENDPOINTS"); raw != "" {
		overrides, err := parseEndpoints(raw)
		if err != nil {
			log.Printf("[RATELIMIT] ignoring RATE_LIMIT_ENDPOINTS: %v", err)
		} else {
			cfg.EndpointConfigs = mergeEndpoints(cfg.EndpointConfigs, overrides)
		}
	}
	return cfg
}

type envReader struct {
	getenv func(string) string
}

func (e envReader) parse(key string, parse func(string) error) {
	raw := e.getenv(key)
	if raw == "" {
		return
	}
	if err := parse(raw); err != nil {
		log.Printf("[RATELIMIT] ignoring %s=%q: %v", key, raw, err)
	}
}

func (e envReader) bool(key string, def bool) bool {
	e.parse(key, func(s string) (err error) {
		var v bool
		if v, err = strconv.ParseBool(s); err == nil {
			def = v
		}
		return err
	})
	return def
}

func (e envReader) int(key string, def int) int {
	e.parse(key, func(s string) (err error) {
		var v int
		if v, err = strconv.Atoi(s); err == nil {
			def = v
		}
		return err
	})
	return def
}

func (e envReader) duration(key string, def time.Duration) time.Duration {
	e.parse(key, func(s string) (err error) {
		var v time.Duration
		if v, err = time.ParseDuration(s); err == nil {
			def = v
		}
		return err
	})
	return def
}

// parseIPList parses a comma-separated list of IP addresses into a set.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}

// parseEndpoints reads "METHOD /path=limit/window[:burst]" entries separated
// by commas.
func parseEndpoints(raw string) ([]EndpointConfig, error) {
	var out []EndpointConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		route, rule, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("%q: missing '='", entry)
		}
		fields := strings.Fields(route)
		if len(fields) != 2 || !strings.HasPrefix(fields[1], "/") {
			return nil, fmt.Errorf("%q: route must be METHOD /path", entry)
		}
		ep := EndpointConfig{Method: strings.ToUpper(fields[0]), Path: fields[1]}

		if rate, burst, hasBurst := strings.Cut(rule, ":"); hasBurst {
			n, err := strconv.Atoi(burst)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%q: bad burst", entry)
			}
			ep.Burst = n
			rule = rate
		}
		limit, window, ok := strings.Cut(rule, "/")
		if !ok {
			return nil, fmt.Errorf("%q: rule must be limit/window", entry)
		}
		var err error
		if ep.Limit, err = strconv.Atoi(limit); err != nil {
			return nil, fmt.Errorf("%q: bad limit", entry)
		}
		if ep.Window, err = time.ParseDuration(window); err != nil {
			return nil, fmt.Errorf("%q: bad window", entry)
		}
		out = append(out, ep)
	}
	return out, nil
}

// mergeEndpoints replaces base entries with the same method and path and
// appends the rest.
func mergeEndpoints(base, overrides []EndpointConfig) []EndpointConfig {
	out := append([]EndpointConfig(nil), base...)
	for _, o := range overrides {
		replaced := false
		for i := range out {
			if out[i].Method == o.Method && out[i].Path == o.Path {
				out[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, o)
		}
	}
	return out
}
