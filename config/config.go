// Package config holds primegate's configuration. Default returns the fixed
// deployment constants; a YAML file may override any of them.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imovelprime/primegate/internal/observability"
	"github.com/imovelprime/primegate/pki"
	"github.com/imovelprime/primegate/policy"
)

// Config is the root configuration.
type Config struct {
	Artifacts ArtifactsConfig         `yaml:"artifacts"`
	CA        IdentityConfig          `yaml:"ca"`
	Leaf      LeafConfig              `yaml:"leaf"`
	Policy    PolicyConfig            `yaml:"policy"`
	Server    ServerConfig            `yaml:"server"`
	Metrics   MetricsConfig           `yaml:"metrics"`
	Log       observability.LogConfig `yaml:"log"`
}

// ArtifactsConfig locates the PEM artifacts and the issuance ledger.
type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
	// LedgerPath is the bbolt ledger file. Empty keeps the ledger in memory.
	LedgerPath string `yaml:"ledger_path"`
}

// AttributeConfig is one subject attribute, e.g. {type: CN, value: localhost}.
type AttributeConfig struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// IdentityConfig describes one certificate identity.
type IdentityConfig struct {
	Subject      []AttributeConfig `yaml:"subject"`
	KeyBits      int               `yaml:"key_bits"`
	ValidityDays int               `yaml:"validity_days"`
}

// LeafConfig is the server identity plus the names it is reached by.
type LeafConfig struct {
	IdentityConfig `yaml:",inline"`
	DNSNames       []string `yaml:"dns_names"`
	IPAddresses    []string `yaml:"ip_addresses"`
}

// PolicyConfig is the sensitive path set.
type PolicyConfig struct {
	SensitivePaths []string `yaml:"sensitive_paths"`
	SecurePort     int      `yaml:"secure_port"`
}

// ServerConfig configures the serving layer.
type ServerConfig struct {
	HTTPAddr          string        `yaml:"http_addr"`
	HTTPSAddr         string        `yaml:"https_addr"`
	TrustProxyHeaders bool          `yaml:"trust_proxy_headers"`
	Upstream          string        `yaml:"upstream"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig guards /metrics. An empty Username leaves it open.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

func subject(pairs ...string) []AttributeConfig {
	out := make([]AttributeConfig, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, AttributeConfig{Type: pairs[i], Value: pairs[i+1]})
	}
	return out
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Artifacts: ArtifactsConfig{
			Dir:        "certs",
			LedgerPath: "data/ledger.db",
		},
		CA: IdentityConfig{
			Subject: subject(
				"C", "BR", "ST", "MG", "L", "Diamantina",
				"O", "ImovelPrime", "OU", "TI", "CN", "ImovelPrime-CA",
			),
			KeyBits:      pki.CAKeyBits,
			ValidityDays: pki.DefaultValidityDays,
		},
		Leaf: LeafConfig{
			IdentityConfig: IdentityConfig{
				Subject: subject(
					"C", "BR", "ST", "MG", "L", "Diamantina",
					"O", "ImovelPrime", "OU", "TI", "CN", "localhost",
				),
				KeyBits:      pki.LeafKeyBits,
				ValidityDays: pki.DefaultValidityDays,
			},
			DNSNames:    []string{"localhost"},
			IPAddresses: []string{"127.0.0.1"},
		},
		Policy: PolicyConfig{
			SensitivePaths: append([]string(nil), policy.DefaultSensitivePaths...),
			SecurePort:     policy.DefaultSecurePort,
		},
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			HTTPSAddr:       ":8443",
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true},
		Log:     observability.DefaultLogConfig(),
	}
}

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Artifacts.Dir) == "" {
		add("artifacts.dir is required")
	}
	for name, id := range map[string]IdentityConfig{"ca": c.CA, "leaf": c.Leaf.IdentityConfig} {
		if id.KeyBits < pki.MinKeyBits {
			add("%s.key_bits: %d is below the minimum of %d", name, id.KeyBits, pki.MinKeyBits)
		}
		if id.ValidityDays <= 0 {
			add("%s.validity_days must be positive", name)
		}
		if _, err := buildName(id.Subject); err != nil {
			add("%s.subject: %w", name, err)
		}
	}
	if len(c.Leaf.DNSNames) == 0 && len(c.Leaf.IPAddresses) == 0 {
		add("leaf: at least one of dns_names or ip_addresses is required")
	}
	if len(c.Policy.SensitivePaths) == 0 {
		add("policy.sensitive_paths must not be empty")
	}
	for i, p := range c.Policy.SensitivePaths {
		if p == "" {
			add("policy.sensitive_paths[%d] is empty", i)
		}
	}
	if !policy.ValidPort(c.Policy.SecurePort) {
		add("policy.secure_port %d is outside 1..65535", c.Policy.SecurePort)
	}
	if c.Server.HTTPAddr == "" && c.Server.HTTPSAddr == "" {
		add("server: at least one of http_addr or https_addr is required")
	}
	if c.Server.ShutdownTimeout < 0 {
		add("server.shutdown_timeout must not be negative")
	}
	if c.Metrics.Username != "" && c.Metrics.PasswordHash == "" {
		add("metrics.password_hash is required when metrics.username is set")
	}
	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %w", err)
	}
	return errors.Join(errs...)
}

// BootstrapConfig converts the certificate settings for pki.Bootstrap.
func (c *Config) BootstrapConfig() (pki.BootstrapConfig, error) {
	caName, err := buildName(c.CA.Subject)
	if err != nil {
		return pki.BootstrapConfig{}, fmt.Errorf("ca.subject: %w", err)
	}
	leafName, err := buildName(c.Leaf.Subject)
	if err != nil {
		return pki.BootstrapConfig{}, fmt.Errorf("leaf.subject: %w", err)
	}
	return pki.BootstrapConfig{
		CASubject:        caName,
		CAKeyBits:        c.CA.KeyBits,
		CAValidityDays:   c.CA.ValidityDays,
		LeafSubject:      leafName,
		LeafKeyBits:      c.Leaf.KeyBits,
		LeafValidityDays: c.Leaf.ValidityDays,
		SANs: pki.SubjectAltNames{
			DNSNames:    append([]string(nil), c.Leaf.DNSNames...),
			IPAddresses: append([]string(nil), c.Leaf.IPAddresses...),
		},
	}, nil
}

// RoutingPolicy builds the sensitive path policy.
func (c *Config) RoutingPolicy() *policy.Policy {
	return policy.New(c.Policy.SensitivePaths, c.Policy.SecurePort)
}

func buildName(attrs []AttributeConfig) (pki.DistinguishedName, error) {
	if len(attrs) == 0 {
		return pki.DistinguishedName{}, pki.ErrEmptyName
	}
	out := make([]pki.Attribute, 0, len(attrs))
	for _, a := range attrs {
		t, err := pki.ParseAttributeType(a.Type)
		if err != nil {
			return pki.DistinguishedName{}, err
		}
		out = append(out, pki.Attribute{Type: t, Value: a.Value})
	}
	return pki.BuildName(out...)
}
