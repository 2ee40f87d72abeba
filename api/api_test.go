package api_test

import (
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/imovelprime/primegate/api"
	"github.com/imovelprime/primegate/auth"
	"github.com/imovelprime/primegate/internal/util"
	"github.com/imovelprime/primegate/pki"
	"github.com/imovelprime/primegate/policy"
	"github.com/imovelprime/primegate/storage/files"
)

func provisioned(t *testing.T) *files.Store {
	t.Helper()
	caName, err := pki.BuildName(
		pki.Attribute{Type: pki.Country, Value: "BR"},
		pki.Attribute{Type: pki.CommonName, Value: "ImovelPrime-CA"},
	)
	require.NoError(t, err)
	leafName, err := pki.BuildName(pki.Attribute{Type: pki.CommonName, Value: "localhost"})
	require.NoError(t, err)

	store := files.New(t.TempDir())
	_, err = pki.Bootstrap(t.Context(), store, pki.BootstrapConfig{
		CASubject:        caName,
		CAKeyBits:        pki.MinKeyBits,
		CAValidityDays:   365,
		LeafSubject:      leafName,
		LeafKeyBits:      pki.MinKeyBits,
		LeafValidityDays: 365,
		SANs:             pki.SubjectAltNames{DNSNames: []string{"localhost"}, IPAddresses: []string{"127.0.0.1"}},
	})
	require.NoError(t, err)
	return store
}

// upstreamStub answers 200 "upstream" and records that it was reached.
type upstreamStub struct{ hits int }

func (u *upstreamStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.hits++
	w.Write([]byte("upstream"))
}

func serve(h http.Handler, method, target string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestForceHTTPS_RedirectsSensitivePaths(t *testing.T) {
	up := &upstreamStub{}
	h := api.New(files.New(t.TempDir()), api.WithUpstream(up)).Handler()

	rec := serve(h, http.MethodGet, "http://example.com:8080/login?next=/")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://example.com:8443/login?next=/", rec.Header().Get("Location"))
	assert.Zero(t, up.hits)

	rec = serve(h, http.MethodPost, "http://example.com/cadastroImovel/novo")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://example.com:8443/cadastroImovel/novo", rec.Header().Get("Location"))
}

func TestForceHTTPS_PassesOtherPaths(t *testing.T) {
	up := &upstreamStub{}
	h := api.New(files.New(t.TempDir()), api.WithUpstream(up)).Handler()

	rec := serve(h, http.MethodGet, "http://example.com:8080/imoveis/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upstream", rec.Body.String())
	assert.Equal(t, 1, up.hits)
}

func TestForceHTTPS_SecureRequestPassesThrough(t *testing.T) {
	up := &upstreamStub{}
	h := api.New(files.New(t.TempDir()), api.WithUpstream(up)).Handler()

	rec := serve(h, http.MethodGet, "https://example.com:8443/login")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, up.hits)
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestForceHTTPS_ProxyHeaders(t *testing.T) {
	spoof := func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") }
	forwarded := func(r *http.Request) { r.Header.Set("Forwarded", "for=10.0.0.1;proto=https") }

	untrusted := api.New(files.New(t.TempDir()), api.WithUpstream(&upstreamStub{})).Handler()
	rec := serve(untrusted, http.MethodGet, "http://example.com/admin", spoof)
	assert.Equal(t, http.StatusMovedPermanently, rec.Code, "spoofed header must be ignored")

	trusted := api.New(files.New(t.TempDir()),
		api.WithUpstream(&upstreamStub{}),
		api.WithTrustProxyHeaders(true),
	).Handler()
	assert.Equal(t, http.StatusOK, serve(trusted, http.MethodGet, "http://example.com/admin", spoof).Code)
	assert.Equal(t, http.StatusOK, serve(trusted, http.MethodGet, "http://example.com/admin", forwarded).Code)
	assert.Equal(t, http.StatusMovedPermanently, serve(trusted, http.MethodGet, "http://example.com/admin").Code)
}

func TestForceHTTPS_CustomPolicy(t *testing.T) {
	h := api.New(files.New(t.TempDir()),
		api.WithPolicy(policy.New([]string{"/conta"}, 443)),
	).Handler()

	rec := serve(h, http.MethodGet, "http://imoveis.example/conta/senha")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://imoveis.example:443/conta/senha", rec.Header().Get("Location"))

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "http://imoveis.example/login").Code)
}

func TestForceHTTPS_Middleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := api.ForceHTTPS(policy.Default())(next)

	assert.Equal(t, http.StatusTeapot, serve(h, http.MethodGet, "http://h/").Code)
	rec := serve(h, http.MethodGet, "http://h:80/admin?x=1&y=%2F")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://h:8443/admin?x=1&y=%2F", rec.Header().Get("Location"))
}

func TestSecurityHeaders(t *testing.T) {
	h := api.New(files.New(t.TempDir())).Handler()

	rec := serve(h, http.MethodGet, "http://example.com/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestCACertificate(t *testing.T) {
	store := provisioned(t)
	h := api.New(store).Handler()

	rec := serve(h, http.MethodGet, "https://localhost:8443/api/v1/ca.crt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-x509-ca-cert", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ca.crt")

	block, _ := pem.Decode(rec.Body.Bytes())
	require.NotNil(t, block)
	assert.Equal(t, "CERTIFICATE", block.Type)

	// The trust API is not sensitive: plaintext clients can fetch the root.
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "http://localhost:8080/api/v1/ca.crt").Code)
}

func TestTrust(t *testing.T) {
	store := provisioned(t)
	h := api.New(store).Handler()

	rec := serve(h, http.MethodGet, "https://localhost:8443/api/v1/trust")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.TrustResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.CA.IsCA)
	assert.Equal(t, "CN=ImovelPrime-CA, C=BR", resp.CA.Subject)
	require.NotNil(t, resp.Leaf)
	assert.False(t, resp.Leaf.IsCA)
	assert.Equal(t, resp.CA.Subject, resp.Leaf.Issuer)
	assert.Equal(t, []string{"localhost"}, resp.Leaf.DNSNames)
	assert.Equal(t, []string{"127.0.0.1"}, resp.Leaf.IPAddresses)
	assert.Equal(t, "/api/v1/ca.crt", resp.CAPath)
}

func TestTrust_NotProvisioned(t *testing.T) {
	h := api.New(files.New(t.TempDir())).Handler()

	for _, path := range []string{"/api/v1/trust", "/api/v1/ca.crt"} {
		rec := serve(h, http.MethodGet, "https://localhost"+path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)

		var e api.ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&e))
		assert.Contains(t, e.Error, "primegate generate")
	}
}

func TestOpenAPIDocument(t *testing.T) {
	h := api.New(files.New(t.TempDir())).Handler()

	rec := serve(h, http.MethodGet, "http://localhost/api/v1/openapi.yaml")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/trust:")

	rec = serve(h, http.MethodGet, "http://localhost/api/v1/docs")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func fastHasher() *auth.Argon2idHasher {
	return &auth.Argon2idHasher{Params: util.Argon2idParams{Time: 1, MemoryKiB: 1024, Parallelism: 1, KeyLen: 32}}
}

func TestMetrics_RequiresAdministrator(t *testing.T) {
	hasher := fastHasher()
	stored, err := hasher.Hash("observe")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	core, logs := observer.New(zapcore.InfoLevel)
	h := api.New(files.New(t.TempDir()),
		api.WithMetrics(api.NewMetrics(reg), reg),
		api.WithMetricsAuth("ops", stored, hasher),
		api.WithLogger(zap.New(core)),
	).Handler()

	rec := serve(h, http.MethodGet, "https://localhost/metrics")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	rec = serve(h, http.MethodGet, "https://localhost/metrics", func(r *http.Request) { r.SetBasicAuth("ops", "wrong") })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodGet, "https://localhost/metrics", func(r *http.Request) { r.SetBasicAuth("root", "observe") })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodGet, "https://localhost/metrics", func(r *http.Request) { r.SetBasicAuth("ops", "observe") })
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "primegate_http_requests_total")

	entries := logs.FilterMessage("http request").All()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1].ContextMap()
	assert.Equal(t, "administrator", last["principal"])
	assert.Equal(t, "anonymous", entries[0].ContextMap()["principal"])
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := api.NewMetrics(reg)
	h := api.New(files.New(t.TempDir()),
		api.WithMetrics(m, reg),
		api.WithUpstream(&upstreamStub{}),
	).Handler()

	serve(h, http.MethodGet, "http://example.com/login")
	serve(h, http.MethodGet, "http://example.com/admin/painel")
	serve(h, http.MethodGet, "http://example.com/imoveis")

	expected := `
# HELP primegate_policy_decisions_total Routing policy decisions by action and matched prefix
# TYPE primegate_policy_decisions_total counter
primegate_policy_decisions_total{action="pass_through",prefix=""} 1
primegate_policy_decisions_total{action="redirect",prefix="/admin"} 1
primegate_policy_decisions_total{action="redirect",prefix="/login"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "primegate_policy_decisions_total"))

	// Redirects never reach the access log.
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "primegate_http_requests_total"))

	// Metrics without auth are open.
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "http://example.com/metrics").Code)
}

func TestUpstreamProxy(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Host", r.Host)
		w.Header().Set("X-Seen-Proto", r.Header.Get("X-Forwarded-Proto"))
		io.WriteString(w, "listing "+r.URL.RequestURI())
	}))
	defer backend.Close()

	proxy, err := api.NewUpstreamProxy(backend.URL, nil)
	require.NoError(t, err)
	h := api.New(files.New(t.TempDir()), api.WithUpstream(proxy)).Handler()

	rec := serve(h, http.MethodGet, "https://imoveis.example/imoveis/42?foto=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "listing /imoveis/42?foto=1", rec.Body.String())
	assert.Equal(t, "imoveis.example", rec.Header().Get("X-Seen-Host"))
	assert.Equal(t, "https", rec.Header().Get("X-Seen-Proto"))
}

func TestUpstreamProxy_Unavailable(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()

	proxy, err := api.NewUpstreamProxy(url, zap.NewNop())
	require.NoError(t, err)

	rec := serve(proxy, http.MethodGet, "http://localhost/imoveis")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestUpstreamProxy_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:3000", "ftp://files", "http://"} {
		_, err := api.NewUpstreamProxy(raw, nil)
		assert.Error(t, err, raw)
	}
}
