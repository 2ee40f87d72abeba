// Package api is the serving layer around primegate's core: it steers
// sensitive paths onto TLS, publishes the local CA so clients can trust it,
// and forwards everything else to the property-listing application.
package api

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-openapi/runtime/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/imovelprime/primegate/auth"
	"github.com/imovelprime/primegate/pki"
	"github.com/imovelprime/primegate/policy"
)

// API holds the dependencies needed by the HTTP handlers.
type API struct {
	artifacts  pki.ArtifactReader
	policy     *policy.Policy
	trustProxy bool
	upstream   http.Handler
	logger     *zap.Logger

	metrics  *Metrics
	gatherer prometheus.Gatherer

	metricsUser string
	metricsHash string
	hasher      auth.PasswordHasher
}

//go:embed openapi.yaml
var openapiDocument []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the logger for access and redirect logs.
func WithLogger(logger *zap.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithPolicy sets the sensitive path policy. The default is policy.Default().
func WithPolicy(p *policy.Policy) Option {
	return func(a *API) {
		a.policy = p
	}
}

// WithTrustProxyHeaders makes X-Forwarded-Proto and Forwarded count when
// deciding whether a request arrived over TLS. Enable it only behind a
// proxy that overwrites those headers.
func WithTrustProxyHeaders(trust bool) Option {
	return func(a *API) {
		a.trustProxy = trust
	}
}

// WithUpstream sets the handler for every path primegate does not serve
// itself. Without one those paths answer 404.
func WithUpstream(h http.Handler) Option {
	return func(a *API) {
		a.upstream = h
	}
}

// WithMetrics records request and decision counters in m and exposes g on
// /metrics.
func WithMetrics(m *Metrics, g prometheus.Gatherer) Option {
	return func(a *API) {
		a.metrics = m
		a.gatherer = g
	}
}

// WithMetricsAuth guards /metrics with HTTP basic auth. storedHash is the
// form produced by hasher.Hash.
func WithMetricsAuth(username, storedHash string, hasher auth.PasswordHasher) Option {
	return func(a *API) {
		a.metricsUser = username
		a.metricsHash = storedHash
		a.hasher = hasher
	}
}

// New creates a new API instance serving artifacts from store.
func New(store pki.ArtifactReader, opts ...Option) *API {
	a := &API{artifacts: store}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.policy == nil {
		a.policy = policy.Default()
	}
	if a.hasher == nil {
		a.hasher = auth.NewArgon2idHasher()
	}
	return a
}

// Router returns the trust API, to be mounted at /api/v1.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiDocument)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Get("/ca.crt", a.CACertificate)
	r.Get("/trust", a.Trust)

	return r
}

// Handler returns the complete serving stack shared by the HTTP and HTTPS
// listeners. ForceHTTPS runs before any other handling.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(ForceHTTPS(a.policy,
		WithRedirectTrustProxyHeaders(a.trustProxy),
		WithRedirectLogger(a.logger),
		WithRedirectMetrics(a.metrics),
	))
	r.Use(chimw.RequestID)
	r.Use(AccessLog(a.logger, a.metrics, a.trustProxy))
	r.Use(chimw.Recoverer)
	r.Use(SecurityHeaders(a.trustProxy))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Mount("/api/v1", a.Router())

	if a.gatherer != nil {
		h := MetricsHandler(a.gatherer)
		if a.metricsUser != "" {
			h = RequireAdministrator(a.metricsUser, a.metricsHash, a.hasher)(h)
		}
		r.Handle("/metrics", h)
	}

	if a.upstream != nil {
		r.NotFound(a.upstream.ServeHTTP)
		r.MethodNotAllowed(a.upstream.ServeHTTP)
	}
	return r
}
