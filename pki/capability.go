package pki

import (
	"crypto"
	"crypto/rand"
	"fmt"
	"io"
)

type capabilityProbe struct {
	name  string
	check func() error
}

var capabilityProbes = []capabilityProbe{
	{name: "SHA-256 digest", check: func() error {
		if !crypto.SHA256.Available() {
			return fmt.Errorf("hash function not linked into binary")
		}
		return nil
	}},
	{name: "platform entropy source", check: func() error {
		_, err := io.ReadFull(rand.Reader, make([]byte, 32))
		return err
	}},
}

// CheckCapabilities verifies the runtime can hash with SHA-256 and read
// from the platform entropy source. It touches no artifacts.
func CheckCapabilities() error {
	for _, p := range capabilityProbes {
		if err := p.check(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCapabilityMissing, p.name, err)
		}
	}
	return nil
}
