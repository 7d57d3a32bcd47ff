package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/flightclaims/claims-engine/internal/platform/apierr"
	"github.com/flightclaims/claims-engine/internal/platform/logging"
	"github.com/flightclaims/claims-engine/internal/platform/metrics"
)

const defaultRequestTimeout = 30 * time.Second

// Recovery recovers from a panic in the handler chain, logs it with a
// stack trace, and responds with a generic 500 instead of letting the
// connection die mid-write.
func Recovery(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if logger != nil {
						logger.Error(r.Context(), "panic recovered", fmt.Errorf("%v", rec), map[string]interface{}{
							"stack":  string(debug.Stack()),
							"path":   r.URL.Path,
							"method": r.Method,
						})
					}
					WriteError(w, r, apierr.Internal("internal server error", fmt.Errorf("%v", rec)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// timeoutResponseWriter tracks whether headers were already written, so the
// timeout branch never double-writes a response the handler already sent.
type timeoutResponseWriter struct {
	http.ResponseWriter
	mu          sync.Mutex
	wroteHeader bool
}

func (tw *timeoutResponseWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if !tw.wroteHeader {
		tw.wroteHeader = true
		tw.ResponseWriter.WriteHeader(code)
	}
}

func (tw *timeoutResponseWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	if !tw.wroteHeader {
		tw.wroteHeader = true
	}
	tw.mu.Unlock()
	return tw.ResponseWriter.Write(b)
}

// Timeout aborts a request with 504 once d elapses without the handler
// completing. When d <= 0 the default of 30s applies.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		d = defaultRequestTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			done := make(chan struct{})
			tw := &timeoutResponseWriter{ResponseWriter: w}

			go func() {
				next.ServeHTTP(tw, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					tw.mu.Lock()
					wrote := tw.wroteHeader
					tw.mu.Unlock()
					if !wrote {
						WriteError(w, r, apierr.Timeout("request"))
					}
				}
			}
		})
	}
}

const defaultMaxRequestBodyBytes int64 = 10 << 20

// BodyLimit caps request bodies at maxBytes, rejecting an oversized body
// immediately when Content-Length already reveals it and otherwise relying
// on http.MaxBytesReader to cut the stream short.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = defaultMaxRequestBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				WriteError(w, r, apierr.FileTooLarge(maxBytes))
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DefaultSecurityHeaders are applied to every response.
func DefaultSecurityHeaders() map[string]string {
	return map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-XSS-Protection":          "1; mode=block",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
		"Content-Security-Policy":   "default-src 'self'",
		"Permissions-Policy":        "geolocation=(), microphone=(), camera=()",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	}
}

// SecurityHeaders sets headers on every response. A nil map falls back to
// DefaultSecurityHeaders.
func SecurityHeaders(headers map[string]string) func(http.Handler) http.Handler {
	if headers == nil {
		headers = DefaultSecurityHeaders()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range headers {
				w.Header().Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSConfig configures cross-origin handling. AllowedOrigins entries
// starting with "." match as a domain suffix; anything else must match the
// request Origin exactly.
type CORSConfig struct {
	AllowedOrigins         []string
	AllowedMethods         []string
	AllowedHeaders         []string
	ExposedHeaders         []string
	AllowCredentials       bool
	MaxAgeSeconds          int
	RejectDisallowedOrigin bool
}

func defaultedCORSConfig(cfg CORSConfig) CORSConfig {
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = []string{"Content-Type", "Authorization", "X-Trace-ID"}
	}
	if len(cfg.ExposedHeaders) == 0 {
		cfg.ExposedHeaders = []string{"X-Trace-ID"}
	}
	if cfg.MaxAgeSeconds == 0 {
		cfg.MaxAgeSeconds = 3600
	}
	return cfg
}

// CORS enforces a closed list of allowed origins. Credentialed requests are
// never granted against a wildcard; the caller (Config.Validate) is
// expected to have already rejected that combination for HTTPS-only origins
// in production, but this middleware enforces the shape regardless of
// environment.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	cfg = defaultedCORSConfig(cfg)
	allowAll := false
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
	}

	isAllowed := func(origin string) bool {
		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := parsed.Hostname()
		if host == "" {
			return false
		}
		for _, allowed := range cfg.AllowedOrigins {
			allowed = strings.TrimSpace(allowed)
			if allowed == "" {
				continue
			}
			if allowed == origin {
				return true
			}
			if strings.HasPrefix(allowed, ".") {
				suffix := strings.TrimPrefix(allowed, ".")
				if suffix != "" && strings.HasSuffix(host, suffix) {
					idx := len(host) - len(suffix)
					if idx > 0 && host[idx-1] == '.' {
						return true
					}
				}
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowCredentials := cfg.AllowCredentials && !allowAll

			allowed := origin != "" && (allowAll || isAllowed(origin))
			switch {
			case allowed:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
				w.Header().Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposedHeaders, ", "))
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAgeSeconds))
				if allowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			case origin != "" && cfg.RejectDisallowedOrigin:
				http.Error(w, "CORS origin not allowed", http.StatusForbidden)
				return
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusCapturingWriter records the status code a handler wrote, so logging
// and metrics middleware can report it after the handler returns.
type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// RequestLogging assigns (or propagates) a trace ID, attaches it to the
// request context and response header, and logs the completed request.
func RequestLogging(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = logging.NewTraceID()
			}
			ctx := logging.WithTraceID(r.Context(), traceID)
			r = r.WithContext(ctx)
			r.Header.Set("X-Trace-ID", traceID)
			w.Header().Set("X-Trace-ID", traceID)

			wrapped := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			if logger != nil {
				logger.LogRequest(ctx, r.Method, r.URL.Path, wrapped.status, time.Since(start))
			}
		})
	}
}

// RequestMetrics records HTTP request counters and latency, gated on
// metrics.Enabled() so a production deployment that opted out pays no
// observation overhead.
func RequestMetrics(m *metrics.Metrics, serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil || !metrics.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			m.IncrementInFlight()
			defer m.DecrementInFlight()

			wrapped := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			routePattern := routePattern(r)
			m.RecordHTTPRequest(serviceName, r.Method, routePattern, strconv.Itoa(wrapped.status), time.Since(start))
		})
	}
}
