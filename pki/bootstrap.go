package pki

import (
	"context"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"go.uber.org/zap"
)

// ArtifactWriter persists one named PEM artifact.
type ArtifactWriter interface {
	Persist(name string, data []byte) error
}

// BootstrapConfig fixes every input of a pipeline run.
type BootstrapConfig struct {
	CASubject        DistinguishedName
	CAKeyBits        int
	CAValidityDays   int
	LeafSubject      DistinguishedName
	LeafKeyBits      int
	LeafValidityDays int
	SANs             SubjectAltNames
}

// BootstrapResult holds what a successful run produced.
type BootstrapResult struct {
	RunID    string
	CACert   *Certificate
	LeafCSR  *CertificateRequest
	LeafCert *Certificate
}

// BootstrapOption configures Bootstrap.
type BootstrapOption func(*bootstrapper)

type bootstrapper struct {
	keys      KeyGenerator
	authority *Authority
	logger    *zap.Logger
}

// WithKeyGenerator overrides the RSA key generator.
func WithKeyGenerator(g KeyGenerator) BootstrapOption {
	return func(b *bootstrapper) {
		b.keys = g
	}
}

// WithAuthority sets the authority that signs both certificates.
func WithAuthority(a *Authority) BootstrapOption {
	return func(b *bootstrapper) {
		b.authority = a
	}
}

// WithBootstrapLogger sets the logger for stage progress.
func WithBootstrapLogger(l *zap.Logger) BootstrapOption {
	return func(b *bootstrapper) {
		b.logger = l
	}
}

// Bootstrap runs the full pipeline: CA key, CA certificate, leaf key, leaf
// CSR, leaf certificate, persisting each artifact as soon as it exists.
// Any failure aborts the run; artifacts already written stay in place and
// the next run overwrites them.
func Bootstrap(ctx context.Context, store ArtifactWriter, cfg BootstrapConfig, opts ...BootstrapOption) (*BootstrapResult, error) {
	b := &bootstrapper{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	if b.keys == nil {
		b.keys = NewRSAKeyGenerator()
	}
	if b.authority == nil {
		b.authority = NewAuthority(WithLogger(b.logger))
	}
	log := b.logger.With(zap.String("run_id", b.authority.RunID()))

	if err := CheckCapabilities(); err != nil {
		return nil, err
	}

	start := time.Now()
	stage := func(n int, msg string, fields ...zap.Field) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("bootstrap interrupted before stage %d: %w", n, err)
		}
		log.Info(msg, append([]zap.Field{zap.String("stage", fmt.Sprintf("%d/5", n))}, fields...)...)
		return nil
	}
	persist := func(name string, data []byte) error {
		if err := store.Persist(name, data); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrStorage, name, err)
		}
		log.Info("artifact written", zap.String("artifact", name), zap.Int("bytes", len(data)))
		return nil
	}
	persistKey := func(name string, kp *KeyPair) error {
		keyPEM := kp.PEM()
		defer memguard.WipeBytes(keyPEM)
		return persist(name, keyPEM)
	}

	// 1. CA private key.
	if err := stage(1, "generating CA private key", zap.Int("bits", cfg.CAKeyBits)); err != nil {
		return nil, err
	}
	caKey, err := b.keys.Generate(cfg.CAKeyBits)
	if err != nil {
		return nil, err
	}
	if err := persistKey(ArtifactCAKey, caKey); err != nil {
		return nil, err
	}

	// 2. CA certificate.
	if err := stage(2, "self-signing CA certificate", zap.String("subject", cfg.CASubject.String())); err != nil {
		return nil, err
	}
	caCert, err := b.authority.SelfSign(caKey, cfg.CASubject, cfg.CAValidityDays)
	if err != nil {
		return nil, err
	}
	if err := persist(ArtifactCACert, caCert.PEM()); err != nil {
		return nil, err
	}

	// 3. Leaf private key.
	if err := stage(3, "generating server private key", zap.Int("bits", cfg.LeafKeyBits)); err != nil {
		return nil, err
	}
	leafKey, err := b.keys.Generate(cfg.LeafKeyBits)
	if err != nil {
		return nil, err
	}
	if err := persistKey(ArtifactLeafKey, leafKey); err != nil {
		return nil, err
	}

	// 4. Leaf CSR.
	if err := stage(4, "building certificate signing request", zap.String("subject", cfg.LeafSubject.String())); err != nil {
		return nil, err
	}
	csr, err := BuildCSR(leafKey, cfg.LeafSubject)
	if err != nil {
		return nil, err
	}
	if err := persist(ArtifactLeafCSR, csr.PEM()); err != nil {
		return nil, err
	}

	// 5. Leaf certificate.
	if err := stage(5, "signing server certificate",
		zap.Strings("dns_names", cfg.SANs.DNSNames),
		zap.Strings("ip_addresses", cfg.SANs.IPAddresses),
	); err != nil {
		return nil, err
	}
	leafCert, err := b.authority.SignCSR(csr, caCert, caKey, cfg.SANs, cfg.LeafValidityDays)
	if err != nil {
		return nil, err
	}
	if err := persist(ArtifactLeafCert, leafCert.PEM()); err != nil {
		return nil, err
	}

	log.Info("bootstrap complete", zap.Duration("elapsed", time.Since(start)))
	return &BootstrapResult{
		RunID:    b.authority.RunID(),
		CACert:   caCert,
		LeafCSR:  csr,
		LeafCert: leafCert,
	}, nil
}
