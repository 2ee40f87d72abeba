package cmd

import (
	"errors"
	"fmt"

	"github.com/imovelprime/primegate/pki"
)

const capabilityRemediation = `The cryptographic primitives PrimeGate needs (RSA, SHA-256 and the
operating system's random number source) are not available in this
environment. Check that /dev/urandom (or getrandom) is readable by this
process and that the binary was built with the standard crypto packages,
then run the command again. No files were written.`

// diagnose turns a command error into the message printed before exiting.
func diagnose(err error) string {
	switch {
	case errors.Is(err, pki.ErrCapabilityMissing):
		return fmt.Sprintf("missing cryptographic capability: %v\n\n%s", err, capabilityRemediation)
	case errors.Is(err, pki.ErrGeneration),
		errors.Is(err, pki.ErrSigning),
		errors.Is(err, pki.ErrStorage):
		return fmt.Sprintf("bootstrap failed: %v\n\nArtifacts written before the failure were left in place; run \"primegate generate\" again to replace them.", err)
	case errors.Is(err, pki.ErrVerification):
		return fmt.Sprintf("verification failed: %v", err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
