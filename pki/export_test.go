package pki

// SetCapabilityCheck replaces the capability probes for the duration of a
// test and returns a function restoring them.
func SetCapabilityCheck(name string, check func() error) func() {
	saved := capabilityProbes
	capabilityProbes = []capabilityProbe{{name: name, check: check}}
	return func() { capabilityProbes = saved }
}

// AuthorityID exposes the ledger scope derived from a CA key.
func AuthorityID(t interface{ Fatalf(string, ...any) }, kp *KeyPair) string {
	id, err := authorityID(kp.Public())
	if err != nil {
		t.Fatalf("authority ID: %v", err)
	}
	return id
}
