package api

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CertificateSummary describes one certificate.
type CertificateSummary struct {
	Subject           string   `json:"subject"`
	Issuer            string   `json:"issuer"`
	SerialNumber      string   `json:"serial_number"`
	NotBefore         string   `json:"not_before"`
	NotAfter          string   `json:"not_after"`
	FingerprintSHA256 string   `json:"fingerprint_sha256"`
	KeyAlgorithm      string   `json:"key_algorithm"`
	IsCA              bool     `json:"is_ca"`
	DNSNames          []string `json:"dns_names,omitempty"`
	IPAddresses       []string `json:"ip_addresses,omitempty"`
	Status            string   `json:"status"`
}

// TrustResponse is returned by GET /trust.
type TrustResponse struct {
	CA     CertificateSummary  `json:"ca"`
	Leaf   *CertificateSummary `json:"leaf,omitempty"`
	CAPath string              `json:"ca_path"`
}
