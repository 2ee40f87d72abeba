// Package policy decides whether a request must be moved onto the encrypted
// endpoint before anything else handles it.
//
// A Policy is immutable once built and performs no I/O, so one value can be
// shared by every request goroutine.
package policy

import (
	"strconv"
	"strings"
)

// DefaultSecurePort is the TLS port redirects point at.
const DefaultSecurePort = 8443

// DefaultSensitivePaths are the prefixes served only over TLS.
var DefaultSensitivePaths = []string{
	"/login",
	"/cadastroCliente",
	"/cadastroImovel",
	"/admin",
}

// Action is the outcome of a decision.
type Action int

const (
	// PassThrough lets the request continue unchanged.
	PassThrough Action = iota
	// Redirect sends the client to the secure endpoint permanently.
	Redirect
)

func (a Action) String() string {
	switch a {
	case PassThrough:
		return "pass_through"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the result of Decide. Scheme, Host, Port and Target are set
// only when Action is Redirect.
type Decision struct {
	Action Action
	Scheme string
	Host   string
	Port   int
	// Target is the original path and query, copied verbatim.
	Target string
	// Prefix is the sensitive prefix that matched.
	Prefix string
}

// URL renders the redirect location. It returns "" for PassThrough.
func (d Decision) URL() string {
	if d.Action != Redirect {
		return ""
	}
	return d.Scheme + "://" + d.Host + ":" + strconv.Itoa(d.Port) + d.Target
}

// Policy holds an ordered set of sensitive path prefixes and the secure port.
type Policy struct {
	prefixes   []string
	securePort int
}

// New builds a Policy. Prefixes are consulted in the given order and the
// first match wins. The slice is copied.
func New(prefixes []string, securePort int) *Policy {
	return &Policy{
		prefixes:   append([]string(nil), prefixes...),
		securePort: securePort,
	}
}

// Default returns the policy with DefaultSensitivePaths and DefaultSecurePort.
func Default() *Policy {
	return New(DefaultSensitivePaths, DefaultSecurePort)
}

// Prefixes returns a copy of the configured prefixes in match order.
func (p *Policy) Prefixes() []string {
	return append([]string(nil), p.prefixes...)
}

// SecurePort returns the port redirects point at.
func (p *Policy) SecurePort() int {
	return p.securePort
}

// Sensitive reports the first configured prefix path starts with. The test
// is a case-sensitive string prefix test.
func (p *Policy) Sensitive(path string) (string, bool) {
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(path, prefix) {
			return prefix, true
		}
	}
	return "", false
}

// Decide classifies one request. path is the decoded URL path,
// fullPathAndQuery the raw request target, host the Host header value and
// isSecure whether the connection is already encrypted. Decide never fails:
// a malformed host is passed through StripPort unchanged.
func (p *Policy) Decide(path, fullPathAndQuery, host string, isSecure bool) Decision {
	if isSecure {
		return Decision{Action: PassThrough}
	}
	prefix, ok := p.Sensitive(path)
	if !ok {
		return Decision{Action: PassThrough}
	}
	return Decision{
		Action: Redirect,
		Scheme: "https",
		Host:   StripPort(host),
		Port:   p.securePort,
		Target: fullPathAndQuery,
		Prefix: prefix,
	}
}

// StripPort truncates host at its first colon. Bracketed IPv6 literals such
// as "[::1]:8080" therefore lose everything after "[".
func StripPort(host string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}

// ValidPort reports whether port can appear in a redirect URL.
func ValidPort(port int) bool {
	return port > 0 && port <= 65535
}

