package pki

import (
	"crypto/rand"
	"crypto/x509"
	"fmt"
)

// BuildCSR creates a PKCS#10 request for dn carrying kp's public key, signed
// with kp's private key to prove possession. No extensions are requested:
// subject alternative names are supplied by the signer, not copied from the
// request.
func BuildCSR(kp *KeyPair, dn DistinguishedName) (*CertificateRequest, error) {
	if kp == nil || kp.Private == nil {
		return nil, fmt.Errorf("%w: leaf key pair is required", ErrSigning)
	}
	if dn.IsEmpty() {
		return nil, fmt.Errorf("%w: request subject: %w", ErrSigning, ErrEmptyName)
	}

	template := &x509.CertificateRequest{
		Subject:            dn.pkixName(),
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, kp.Private)
	if err != nil {
		return nil, fmt.Errorf("%w: creating CSR: %w", ErrSigning, err)
	}
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing CSR: %w", ErrSigning, err)
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("%w: CSR signature invalid: %w", ErrSigning, err)
	}
	return &CertificateRequest{CSR: csr, DER: der}, nil
}
