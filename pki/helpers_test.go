package pki_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imovelprime/primegate/pki"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newKey(t *testing.T) *pki.KeyPair {
	t.Helper()
	kp, err := pki.NewRSAKeyGenerator().Generate(2048)
	require.NoError(t, err)
	return kp
}

func caName(t *testing.T) pki.DistinguishedName {
	t.Helper()
	dn, err := pki.BuildName(
		pki.Attribute{Type: pki.Country, Value: "BR"},
		pki.Attribute{Type: pki.Province, Value: "MG"},
		pki.Attribute{Type: pki.Locality, Value: "Diamantina"},
		pki.Attribute{Type: pki.Organization, Value: "ImovelPrime"},
		pki.Attribute{Type: pki.OrganizationalUnit, Value: "TI"},
		pki.Attribute{Type: pki.CommonName, Value: "ImovelPrime-CA"},
	)
	require.NoError(t, err)
	return dn
}

func leafName(t *testing.T) pki.DistinguishedName {
	t.Helper()
	dn, err := pki.BuildName(
		pki.Attribute{Type: pki.Country, Value: "BR"},
		pki.Attribute{Type: pki.Organization, Value: "ImovelPrime"},
		pki.Attribute{Type: pki.CommonName, Value: "localhost"},
	)
	require.NoError(t, err)
	return dn
}

// newCA returns an authority together with a freshly self-signed CA.
func newCA(t *testing.T, opts ...pki.Option) (*pki.Authority, *pki.KeyPair, *pki.Certificate) {
	t.Helper()
	a := pki.NewAuthority(append([]pki.Option{pki.WithClock(fixedClock)}, opts...)...)
	kp := newKey(t)
	ca, err := a.SelfSign(kp, caName(t), 365)
	require.NoError(t, err)
	return a, kp, ca
}
