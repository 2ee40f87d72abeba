package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/imovelprime/primegate/api"
	"github.com/imovelprime/primegate/auth"
	"github.com/imovelprime/primegate/config"
	"github.com/imovelprime/primegate/pki"
	"github.com/imovelprime/primegate/storage/files"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve HTTP and HTTPS, forcing sensitive paths onto HTTPS",
	Long: `Starts a plain HTTP listener and a TLS listener that share one handler.
Requests for sensitive paths (login, registration, admin) that arrive over
plain HTTP are answered with a permanent redirect to the HTTPS port. The CA
certificate is published at /api/v1/ca.crt. Any other path is forwarded to
the configured upstream application.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store := files.New(cfg.Artifacts.Dir)
	handler, err := buildHandler(cfg, store, logger)
	if err != nil {
		return err
	}

	var tlsConfig *tls.Config
	if cfg.Server.HTTPSAddr != "" {
		if tlsConfig, err = loadTLSConfig(store); err != nil {
			return err
		}
	}

	var servers []*http.Server
	done := make(chan error, 2)

	if cfg.Server.HTTPAddr != "" {
		srv := newHTTPServer(cfg.Server.HTTPAddr, handler, nil)
		servers = append(servers, srv)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("http server failed: %w", err)
				return
			}
			done <- nil
		}()
	}

	if tlsConfig != nil {
		srv := newHTTPServer(cfg.Server.HTTPSAddr, handler, tlsConfig)
		servers = append(servers, srv)
		go func() {
			if err := srv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("https server failed: %w", err)
				return
			}
			done <- nil
		}()
	}

	printBanner(cmd.OutOrStdout())
	logger.Info("serving",
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.String("https_addr", cfg.Server.HTTPSAddr),
		zap.Strings("sensitive_paths", cfg.Policy.SensitivePaths),
		zap.Int("secure_port", cfg.Policy.SecurePort),
		zap.String("upstream", cfg.Server.Upstream),
	)

	var runErr error
	select {
	case <-cmd.Context().Done():
		logger.Info("shutting down")
	case runErr = <-done:
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
	}
	return runErr
}

func buildHandler(cfg *config.Config, store *files.Store, logger *zap.Logger) (http.Handler, error) {
	opts := []api.Option{
		api.WithLogger(logger),
		api.WithPolicy(cfg.RoutingPolicy()),
		api.WithTrustProxyHeaders(cfg.Server.TrustProxyHeaders),
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, api.WithMetrics(api.NewMetrics(reg), reg))
		if cfg.Metrics.Username != "" {
			opts = append(opts, api.WithMetricsAuth(cfg.Metrics.Username, cfg.Metrics.PasswordHash, auth.NewArgon2idHasher()))
		}
	}
	if cfg.Server.Upstream != "" {
		proxy, err := api.NewUpstreamProxy(cfg.Server.Upstream, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, api.WithUpstream(proxy))
	}
	return api.New(store, opts...).Handler(), nil
}

// loadTLSConfig refuses to serve artifacts that do not form a valid chain.
func loadTLSConfig(store *files.Store) (*tls.Config, error) {
	if _, err := pki.Verify(store); err != nil {
		return nil, fmt.Errorf("TLS artifacts in %s are unusable (run primegate generate): %w", store.Dir(), err)
	}
	certPEM, err := store.Read(pki.ArtifactLeafCert)
	if err != nil {
		return nil, err
	}
	keyPEM, err := store.Read(pki.ArtifactLeafKey)
	if err != nil {
		return nil, err
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func newHTTPServer(addr string, h http.Handler, tlsConfig *tls.Config) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
