package pki

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/imovelprime/primegate/storage"
)

// SubjectAltNames is the set of identities a server certificate is valid for.
type SubjectAltNames struct {
	DNSNames    []string
	IPAddresses []string
}

// resolve validates every entry and parses the IP literals.
func (s SubjectAltNames) resolve() ([]string, []net.IP, error) {
	if len(s.DNSNames) == 0 && len(s.IPAddresses) == 0 {
		return nil, nil, fmt.Errorf("%w: no entries", ErrInvalidSAN)
	}
	dns := make([]string, 0, len(s.DNSNames))
	for _, name := range s.DNSNames {
		if name == "" || strings.ContainsAny(name, " \t\r\n/") {
			return nil, nil, fmt.Errorf("%w: DNS name %q", ErrInvalidSAN, name)
		}
		dns = append(dns, name)
	}
	ips := make([]net.IP, 0, len(s.IPAddresses))
	for _, lit := range s.IPAddresses {
		ip := net.ParseIP(lit)
		if ip == nil {
			return nil, nil, fmt.Errorf("%w: IP literal %q", ErrInvalidSAN, lit)
		}
		ips = append(ips, ip)
	}
	return dns, ips, nil
}

// SignCSR issues a leaf certificate for csr, signed by the CA certificate ca
// and its key caKey. Subject and public key come from the request, the
// issuer is ca's subject (byte for byte), validity is [now, now+validityDays]
// and the only requested extension is the SAN set, which stays non-critical
// because the subject is never empty.
func (a *Authority) SignCSR(csr *CertificateRequest, ca *Certificate, caKey *KeyPair, sans SubjectAltNames, validityDays int) (*Certificate, error) {
	if csr == nil || csr.CSR == nil {
		return nil, fmt.Errorf("%w: CSR is required", ErrSigning)
	}
	if ca == nil || ca.Cert == nil || caKey == nil || caKey.Private == nil {
		return nil, fmt.Errorf("%w: issuer certificate and key are required", ErrSigning)
	}
	if !ca.Cert.IsCA {
		return nil, fmt.Errorf("%w: %w", ErrSigning, ErrNotCA)
	}
	caPub, ok := ca.Cert.PublicKey.(*rsa.PublicKey)
	if !ok || !caKey.Public().Equal(caPub) {
		return nil, fmt.Errorf("%w: issuer: %w", ErrSigning, ErrKeyMismatch)
	}
	if err := csr.CSR.CheckSignature(); err != nil {
		return nil, fmt.Errorf("%w: CSR signature invalid: %w", ErrSigning, err)
	}
	dnsNames, ips, err := sans.resolve()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	notBefore, notAfter, err := a.validityWindow(validityDays)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	authority, err := authorityID(caPub)
	if err != nil {
		return nil, fmt.Errorf("%w: deriving authority ID: %w", ErrSigning, err)
	}
	subject := subjectString(csr.CSR.Subject)
	serial, err := a.reserveSerial(authority, storage.KindLeaf, subject)
	if err != nil {
		if errors.Is(err, ErrStorage) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	template := &x509.Certificate{
		SerialNumber:       serial,
		RawSubject:         csr.CSR.RawSubject,
		NotBefore:          notBefore,
		NotAfter:           notAfter,
		DNSNames:           dnsNames,
		IPAddresses:        ips,
		SignatureAlgorithm: x509.SHA256WithRSA,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, ca.Cert, csr.CSR.PublicKey, caKey.Private)
	if err != nil {
		return nil, fmt.Errorf("%w: signing leaf certificate: %w", ErrSigning, err)
	}
	cert, err := newCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing leaf certificate: %w", ErrSigning, err)
	}
	if !bytes.Equal(cert.Cert.RawIssuer, ca.Cert.RawSubject) {
		return nil, fmt.Errorf("%w: issuer name does not match CA subject", ErrSigning)
	}

	a.logger.Info("signed leaf certificate",
		zap.String("subject", subject),
		zap.String("serial", serialHex(cert.Cert)),
		zap.Strings("dns_names", dnsNames),
		zap.Int("ip_addresses", len(ips)),
		zap.Time("not_after", notAfter),
	)
	return cert, nil
}
