package pki

import (
	"crypto/rand"
	"crypto/x509"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/imovelprime/primegate/storage"
)

// SelfSign creates the root CA certificate for kp: subject and issuer are
// both dn, validity is [now, now+validityDays], and BasicConstraints asserts
// CA=true with no path length limit (encoded critical). The certificate is
// signed with SHA-256 by kp's own private key.
func (a *Authority) SelfSign(kp *KeyPair, dn DistinguishedName, validityDays int) (*Certificate, error) {
	if kp == nil || kp.Private == nil {
		return nil, fmt.Errorf("%w: CA key pair is required", ErrSigning)
	}
	if dn.IsEmpty() {
		return nil, fmt.Errorf("%w: CA subject: %w", ErrSigning, ErrEmptyName)
	}
	notBefore, notAfter, err := a.validityWindow(validityDays)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	authority, err := authorityID(kp.Public())
	if err != nil {
		return nil, fmt.Errorf("%w: deriving authority ID: %w", ErrSigning, err)
	}
	serial, err := a.reserveSerial(authority, storage.KindCA, dn.String())
	if err != nil {
		if errors.Is(err, ErrStorage) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               dn.pkixName(),
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            -1,
		SignatureAlgorithm:    x509.SHA256WithRSA,
	}

	// Self-sign.
	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, kp.Public(), kp.Private)
	if err != nil {
		return nil, fmt.Errorf("%w: creating CA certificate: %w", ErrSigning, err)
	}
	cert, err := newCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing CA certificate: %w", ErrSigning, err)
	}

	a.logger.Info("self-signed CA certificate",
		zap.String("subject", dn.String()),
		zap.String("serial", serialHex(cert.Cert)),
		zap.Time("not_after", notAfter),
	)
	return cert, nil
}
