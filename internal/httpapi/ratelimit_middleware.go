package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flightclaims/claims-engine/internal/auth"
	"github.com/flightclaims/claims-engine/internal/platform/apierr"
)

// clientIP extracts the best-effort client address: X-Forwarded-For/
// X-Real-IP are only trusted when the direct peer is itself on a private
// or loopback network (the normal shape of a request arriving through an
// ingress proxy); a request arriving straight from the internet falls
// back to RemoteAddr so a client can't simply forge the header to dodge
// its own rate limit.
func clientIP(r *http.Request) string {
	remoteIP := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remoteIP); err == nil {
		remoteIP = host
	}

	parsed := net.ParseIP(remoteIP)
	trustForwarded := parsed != nil && (parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast())
	if trustForwarded {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			candidate := strings.TrimSpace(strings.Split(xff, ",")[0])
			if host, _, err := net.SplitHostPort(candidate); err == nil {
				candidate = host
			}
			if candidate != "" {
				return candidate
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	return remoteIP
}

// RateLimitByIP throttles a route group by client IP against the shared
// Redis-backed auth.RateLimiter, so the budget holds across every replica
// rather than resetting whenever a request lands on a different process.
// Intended for the unauthenticated auth endpoints (login, magic-link
// request, password-reset request) that would otherwise let an attacker
// hammer the service without ever acquiring a bearer token RequireAuth
// could key off of.
func RateLimitByIP(limiter *auth.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			allowed, err := limiter.Allow(r.Context(), clientIP(r))
			if err != nil {
				// A rate limiter outage should not block the auth path;
				// degrade to allowing the request through.
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if seconds := int(window.Seconds()); seconds > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(seconds))
				}
				WriteError(w, r, apierr.RateLimited(limit, window.String()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
