package api

import (
	"net/http"
	"strings"

	"github.com/imovelprime/primegate/pki"
)

// CACertificate serves the CA certificate so clients can import it as a
// trusted root.
func (a *API) CACertificate(w http.ResponseWriter, r *http.Request) {
	data, err := a.artifacts.Read(pki.ArtifactCACert)
	if err != nil {
		mapError(w, err)
		return
	}
	if _, err := pki.LoadCertificatePEM(data); err != nil {
		mapError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-x509-ca-cert")
	w.Header().Set("Content-Disposition", `attachment; filename="`+pki.ArtifactCACert+`"`)
	w.Write(data)
}

// Trust describes the CA and, when present, the server certificate.
func (a *API) Trust(w http.ResponseWriter, r *http.Request) {
	caSummary, err := a.summary(pki.ArtifactCACert)
	if err != nil {
		mapError(w, err)
		return
	}
	resp := TrustResponse{CA: *caSummary, CAPath: "/api/v1/" + pki.ArtifactCACert}
	if leaf, err := a.summary(pki.ArtifactLeafCert); err == nil {
		resp.Leaf = leaf
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) summary(name string) (*CertificateSummary, error) {
	data, err := a.artifacts.Read(name)
	if err != nil {
		return nil, err
	}
	fields, err := pki.ParseCertificatePEM(data)
	if err != nil {
		return nil, err
	}
	return &CertificateSummary{
		Subject:           fields[pki.FieldSubject],
		Issuer:            fields[pki.FieldIssuer],
		SerialNumber:      fields[pki.FieldSerialNumber],
		NotBefore:         fields[pki.FieldNotBefore],
		NotAfter:          fields[pki.FieldNotAfter],
		FingerprintSHA256: fields[pki.FieldFingerprintSHA256],
		KeyAlgorithm:      fields[pki.FieldKeyAlgorithm],
		IsCA:              fields[pki.FieldIsCA] == "true",
		DNSNames:          splitList(fields[pki.FieldDNSNames]),
		IPAddresses:       splitList(fields[pki.FieldIPAddresses]),
		Status:            fields[pki.FieldStatus],
	}, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
