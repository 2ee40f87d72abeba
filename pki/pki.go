// Package pki bootstraps a local trust domain: an RSA root CA that signs one
// server (leaf) certificate through a CSR. Key material, certificates and the
// request are written as PEM artifacts under fixed names; the serial numbers
// the CA hands out are recorded in a storage.Ledger so they never repeat.
package pki

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

// Error classes. Every error returned by this package wraps exactly one of
// these so callers can tell failures apart with errors.Is.
var (
	// ErrGeneration is returned when key material could not be produced.
	ErrGeneration = errors.New("key generation failed")

	// ErrSigning is returned when a certificate or CSR could not be built or
	// signed.
	ErrSigning = errors.New("signing failed")

	// ErrStorage is returned when an artifact could not be written.
	ErrStorage = errors.New("artifact storage failed")

	// ErrCapabilityMissing is returned when the runtime lacks a cryptographic
	// primitive the pipeline depends on.
	ErrCapabilityMissing = errors.New("required cryptographic capability unavailable")

	// ErrVerification is returned by Verify when the artifacts on disk are
	// missing or inconsistent.
	ErrVerification = errors.New("artifact verification failed")
)

// Detail errors, wrapped together with one of the classes above.
var (
	ErrInsecureKeySize    = errors.New("key size below minimum")
	ErrUnsupportedKeySize = errors.New("unsupported key size")
	ErrEmptyAttribute     = errors.New("distinguished name attribute has an empty value")
	ErrUnknownAttribute   = errors.New("unknown distinguished name attribute type")
	ErrEmptyName          = errors.New("distinguished name has no attributes")
	ErrInvalidSAN         = errors.New("invalid subject alternative name")
	ErrInvalidValidity    = errors.New("validity period must be positive")
	ErrInvalidPEM         = errors.New("invalid PEM data")
	ErrKeyMismatch        = errors.New("private key does not match certificate")
	ErrNotCA              = errors.New("issuer certificate is not a CA")
	ErrSerialExhausted    = errors.New("could not draw an unused serial number")
	ErrMissingArtifact    = errors.New("artifact missing or empty")
)

// ---------------------------------------------------------------------------
// Artifact layout
// ---------------------------------------------------------------------------

// Fixed artifact names.
const (
	ArtifactCAKey    = "ca.key"
	ArtifactCACert   = "ca.crt"
	ArtifactLeafKey  = "server.key"
	ArtifactLeafCSR  = "server.csr"
	ArtifactLeafCert = "server.crt"
)

// ArtifactNames returns the artifact names in the order the pipeline writes them.
func ArtifactNames() []string {
	return []string{ArtifactCAKey, ArtifactCACert, ArtifactLeafKey, ArtifactLeafCSR, ArtifactLeafCert}
}

// PEM block types.
const (
	pemTypeCertificate = "CERTIFICATE"
	pemTypeCSR         = "CERTIFICATE REQUEST"
	pemTypeRSAKey      = "RSA PRIVATE KEY"
	pemTypePKCS8Key    = "PRIVATE KEY"
)

// ---------------------------------------------------------------------------
// Certificate types
// ---------------------------------------------------------------------------

// Certificate is a signed certificate in parsed and DER form.
type Certificate struct {
	Cert *x509.Certificate
	DER  []byte
}

// PEM returns the certificate as a CERTIFICATE PEM block.
func (c *Certificate) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeCertificate, Bytes: c.DER})
}

func newCertificate(der []byte) (*Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Certificate{Cert: cert, DER: der}, nil
}

// CertificateRequest is a self-signed PKCS#10 request in parsed and DER form.
type CertificateRequest struct {
	CSR *x509.CertificateRequest
	DER []byte
}

// PEM returns the request as a CERTIFICATE REQUEST PEM block.
func (r *CertificateRequest) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeCSR, Bytes: r.DER})
}

// ---------------------------------------------------------------------------
// Certificate PEM parsing
// ---------------------------------------------------------------------------

// Well-known field names returned by ParseCertificatePEM.
const (
	FieldSubject           = "subject"
	FieldIssuer            = "issuer"
	FieldSerialNumber      = "serial_number"
	FieldNotBefore         = "not_before"
	FieldNotAfter          = "not_after"
	FieldFingerprintSHA256 = "fingerprint_sha256"
	FieldKeyAlgorithm      = "key_algorithm"
	FieldIsCA              = "is_ca"
	FieldDNSNames          = "dns_names"
	FieldIPAddresses       = "ip_addresses"
	FieldStatus            = "status"
)

// Certificate status values.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
)

// LoadCertificatePEM decodes the first CERTIFICATE block in data.
func LoadCertificatePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypeCertificate {
		return nil, ErrInvalidPEM
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
	}
	return cert, nil
}

// ParseCertificatePEM decodes a PEM certificate and returns a map of
// well-known field values extracted from the parsed x509 certificate.
func ParseCertificatePEM(certPEM []byte) (map[string]string, error) {
	cert, err := LoadCertificatePEM(certPEM)
	if err != nil {
		return nil, err
	}
	return certificateFields(cert), nil
}

func certificateFields(cert *x509.Certificate) map[string]string {
	fingerprint := sha256.Sum256(cert.Raw)
	ips := make([]string, 0, len(cert.IPAddresses))
	for _, ip := range cert.IPAddresses {
		ips = append(ips, ip.String())
	}

	return map[string]string{
		FieldSubject:           subjectString(cert.Subject),
		FieldIssuer:            subjectString(cert.Issuer),
		FieldSerialNumber:      serialHex(cert),
		FieldNotBefore:         cert.NotBefore.UTC().Format(time.RFC3339),
		FieldNotAfter:          cert.NotAfter.UTC().Format(time.RFC3339),
		FieldFingerprintSHA256: hex.EncodeToString(fingerprint[:]),
		FieldKeyAlgorithm:      keyAlgorithmString(cert),
		FieldIsCA:              fmt.Sprintf("%t", cert.IsCA),
		FieldDNSNames:          strings.Join(cert.DNSNames, ","),
		FieldIPAddresses:       strings.Join(ips, ","),
		FieldStatus:            certStatus(cert),
	}
}

// subjectString formats a pkix.Name as a readable DN string.
func subjectString(name pkix.Name) string {
	var parts []string
	if name.CommonName != "" {
		parts = append(parts, "CN="+name.CommonName)
	}
	for _, ou := range name.OrganizationalUnit {
		parts = append(parts, "OU="+ou)
	}
	for _, o := range name.Organization {
		parts = append(parts, "O="+o)
	}
	for _, l := range name.Locality {
		parts = append(parts, "L="+l)
	}
	for _, p := range name.Province {
		parts = append(parts, "ST="+p)
	}
	for _, c := range name.Country {
		parts = append(parts, "C="+c)
	}
	return strings.Join(parts, ", ")
}

// certStatus returns "active" or "expired" based on the certificate's validity window.
func certStatus(cert *x509.Certificate) string {
	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return StatusExpired
	}
	return StatusActive
}

// keyAlgorithmString returns a human-readable key algorithm description.
func keyAlgorithmString(cert *x509.Certificate) string {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return fmt.Sprintf("RSA %d", pub.N.BitLen())
	default:
		return cert.PublicKeyAlgorithm.String()
	}
}

func serialHex(cert *x509.Certificate) string {
	return cert.SerialNumber.Text(16)
}

// authorityID derives the ledger scope for a CA from its public key.
func authorityID(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:]), nil
}

// parsePrivateKeyPEM accepts PKCS#1 and PKCS#8 encoded RSA keys.
func parsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidPEM)
	}
	switch block.Type {
	case pemTypeRSAKey:
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
		}
		return key, nil
	case pemTypePKCS8Key:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPEM)
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidPEM, block.Type)
	}
}
