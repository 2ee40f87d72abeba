package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/imovelprime/primegate/auth"
	"github.com/imovelprime/primegate/policy"
)

// requestIsSecure reports whether r arrived over TLS. Forwarding headers
// are consulted only when trustProxy is set; otherwise a client could
// claim TLS and skip the redirect.
func requestIsSecure(r *http.Request, trustProxy bool) bool {
	if r.TLS != nil {
		return true
	}
	if !trustProxy {
		return false
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}

// requestTarget is the path and query exactly as the client sent them.
func requestTarget(r *http.Request) string {
	if strings.HasPrefix(r.RequestURI, "/") {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}

type redirectOptions struct {
	trustProxy bool
	logger     *zap.Logger
	metrics    *Metrics
}

// RedirectOption configures ForceHTTPS.
type RedirectOption func(*redirectOptions)

// WithRedirectTrustProxyHeaders lets forwarding headers mark a request as secure.
func WithRedirectTrustProxyHeaders(trust bool) RedirectOption {
	return func(o *redirectOptions) { o.trustProxy = trust }
}

// WithRedirectLogger logs every redirect at debug level.
func WithRedirectLogger(l *zap.Logger) RedirectOption {
	return func(o *redirectOptions) { o.logger = l }
}

// WithRedirectMetrics counts decisions in m.
func WithRedirectMetrics(m *Metrics) RedirectOption {
	return func(o *redirectOptions) { o.metrics = m }
}

// ForceHTTPS answers plaintext requests for sensitive paths with a 301 to
// the secure endpoint. Every other request continues unchanged.
func ForceHTTPS(p *policy.Policy, opts ...RedirectOption) func(http.Handler) http.Handler {
	o := redirectOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := p.Decide(r.URL.Path, requestTarget(r), r.Host, requestIsSecure(r, o.trustProxy))
			o.metrics.recordDecision(d)
			if d.Action != policy.Redirect {
				next.ServeHTTP(w, r)
				return
			}
			o.logger.Debug("redirecting to secure endpoint",
				zap.String("path", r.URL.Path),
				zap.String("prefix", d.Prefix),
				zap.String("location", d.URL()),
			)
			http.Redirect(w, r, d.URL(), http.StatusMovedPermanently)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	status    int
	size      int
	principal auth.Principal
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size.
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Flush implements http.Flusher interface for streaming support.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// AccessLog logs one line per request and records request metrics.
func AccessLog(logger *zap.Logger, m *Metrics, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			secure := requestIsSecure(r, trustProxy)
			m.recordRequest(r.Method, rw.status, secure, duration)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.status),
				zap.Int("size", rw.size),
				zap.Duration("duration", duration),
				zap.Bool("secure", secure),
				zap.String("principal", rw.principal.Kind().String()),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}

// RequireAdministrator guards next with HTTP basic auth. A caller with the
// right username and password becomes an Administrator principal.
func RequireAdministrator(username, storedHash string, hasher auth.PasswordHasher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			if !ok || !hasher.Verify(pass, storedHash) || !userOK {
				w.Header().Set("WWW-Authenticate", `Basic realm="primegate", charset="UTF-8"`)
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			p := auth.Administrator(user)
			if rw, ok := w.(*responseWriter); ok {
				rw.principal = p
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}
