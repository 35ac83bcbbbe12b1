package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/infra/geoip"
	"server/internal/ratelimit"
)

// RateLimit admits generation-start requests through the shared limiter.
// Rejections carry Retry-After and never reach the handler, so a limited
// request has no side effects.
func RateLimit(limiter ratelimit.Limiter, resolver geoip.CountryResolver, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			d := limiter.Allow(ip+"|"+r.URL.Path, time.Now())

			if d.Remaining >= 0 {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}
			if d.OK {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			country := ""
			if resolver != nil {
				if code, err := resolver.CountryCode(ip); err == nil {
					country = code
				}
			}
			log.Warn().
				Str("ip", ip).
				Str("country", country).
				Str("path", r.URL.Path).
				Int("count", d.Count).
				Msg("rate limit exceeded")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":      "rate_limited",
				"message":    "too many generation requests, try again later",
				"retryAfter": retryAfter,
			})
		})
	}
}

// ClientIP extracts the originating client address, preferring the first
// valid entry of X-Forwarded-For when the service sits behind a proxy.
func ClientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
