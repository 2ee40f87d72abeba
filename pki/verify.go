package pki

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/imovelprime/primegate/storage/files"
)

// ArtifactReader returns the contents of one named artifact.
type ArtifactReader interface {
	Read(name string) ([]byte, error)
}

// Report summarizes a verified artifact set.
type Report struct {
	CA         map[string]string
	Leaf       map[string]string
	CSRSubject string
	// AuthorityID is the ledger scope of the CA.
	AuthorityID string
}

// Verify loads the five artifacts from r and checks that they form one
// consistent trust domain: the CA is self-signed with CA=true, each private
// key matches its certificate, the leaf chains to the CA, and the CSR is
// validly self-signed for the leaf key.
func Verify(r ArtifactReader) (*Report, error) {
	raw := make(map[string][]byte, 5)
	for _, name := range ArtifactNames() {
		data, err := r.Read(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w: %s: %w", ErrVerification, ErrMissingArtifact, name, err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, fmt.Errorf("%w: %w: %s", ErrVerification, ErrMissingArtifact, name)
		}
		raw[name] = data
	}
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrVerification, fmt.Sprintf(format, args...))
	}

	caKey, err := parsePrivateKeyPEM(raw[ArtifactCAKey])
	if err != nil {
		return nil, fail("%s: %v", ArtifactCAKey, err)
	}
	caCert, err := LoadCertificatePEM(raw[ArtifactCACert])
	if err != nil {
		return nil, fail("%s: %v", ArtifactCACert, err)
	}
	leafKey, err := parsePrivateKeyPEM(raw[ArtifactLeafKey])
	if err != nil {
		return nil, fail("%s: %v", ArtifactLeafKey, err)
	}
	leafCert, err := LoadCertificatePEM(raw[ArtifactLeafCert])
	if err != nil {
		return nil, fail("%s: %v", ArtifactLeafCert, err)
	}
	csr, err := loadCSRPEM(raw[ArtifactLeafCSR])
	if err != nil {
		return nil, fail("%s: %v", ArtifactLeafCSR, err)
	}

	// CA: self-signed root with CA=true.
	if !caCert.BasicConstraintsValid || !caCert.IsCA {
		return nil, fail("%s: BasicConstraints does not assert CA=true", ArtifactCACert)
	}
	if !bytes.Equal(caCert.RawIssuer, caCert.RawSubject) {
		return nil, fail("%s: issuer differs from subject", ArtifactCACert)
	}
	if err := caCert.CheckSignatureFrom(caCert); err != nil {
		return nil, fail("%s: self-signature invalid: %v", ArtifactCACert, err)
	}
	if !publicKeyMatches(caKey, caCert) {
		return nil, fail("%s: %v", ArtifactCAKey, ErrKeyMismatch)
	}

	// Leaf: issued by the CA, chains to it, key matches.
	if !bytes.Equal(leafCert.RawIssuer, caCert.RawSubject) {
		return nil, fail("%s: issuer is not the CA subject", ArtifactLeafCert)
	}
	roots := x509.NewCertPool()
	roots.AddCert(caCert)
	if _, err := leafCert.Verify(x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, fail("%s: does not chain to %s: %v", ArtifactLeafCert, ArtifactCACert, err)
	}
	if !publicKeyMatches(leafKey, leafCert) {
		return nil, fail("%s: %v", ArtifactLeafKey, ErrKeyMismatch)
	}
	if leafCert.SerialNumber.Cmp(caCert.SerialNumber) == 0 {
		return nil, fail("leaf and CA share serial %s", serialHex(leafCert))
	}

	// CSR: self-signed for the leaf key.
	if err := csr.CheckSignature(); err != nil {
		return nil, fail("%s: signature invalid: %v", ArtifactLeafCSR, err)
	}
	csrPub, ok := csr.PublicKey.(*rsa.PublicKey)
	if !ok || !leafKey.PublicKey.Equal(csrPub) {
		return nil, fail("%s: public key does not match %s", ArtifactLeafCSR, ArtifactLeafKey)
	}

	authority, err := authorityID(&caKey.PublicKey)
	if err != nil {
		return nil, fail("deriving authority ID: %v", err)
	}
	return &Report{
		CA:          certificateFields(caCert),
		Leaf:        certificateFields(leafCert),
		CSRSubject:  subjectString(csr.Subject),
		AuthorityID: authority,
	}, nil
}

// VerifyArtifacts runs Verify against the artifact directory dir.
func VerifyArtifacts(dir string) (*Report, error) {
	return Verify(files.New(dir))
}

func publicKeyMatches(key *rsa.PrivateKey, cert *x509.Certificate) bool {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	return ok && key.PublicKey.Equal(pub)
}

func loadCSRPEM(data []byte) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypeCSR {
		return nil, ErrInvalidPEM
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
	}
	return csr, nil
}
