package pki_test

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imovelprime/primegate/pki"
	"github.com/imovelprime/primegate/storage"
	"github.com/imovelprime/primegate/storage/memory"
)

var oidBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}

func TestSelfSign(t *testing.T) {
	_, kp, ca := newCA(t)
	cert := ca.Cert

	// CA=true, unconstrained path length, critical BasicConstraints.
	assert.True(t, cert.BasicConstraintsValid)
	assert.True(t, cert.IsCA)
	assert.Equal(t, -1, cert.MaxPathLen)
	assert.False(t, cert.MaxPathLenZero)
	var found bool
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oidBasicConstraints) {
			found = true
			assert.True(t, ext.Critical)
		}
	}
	assert.True(t, found, "BasicConstraints extension missing")

	// Self-signed: issuer == subject and the signature verifies under its own key.
	assert.Equal(t, cert.RawSubject, cert.RawIssuer)
	require.NoError(t, cert.CheckSignatureFrom(cert))
	assert.Equal(t, x509.SHA256WithRSA, cert.SignatureAlgorithm)
	assert.True(t, kp.Public().Equal(cert.PublicKey))

	// Validity window [now, now+365d].
	assert.True(t, cert.NotBefore.Equal(fixedNow))
	assert.True(t, cert.NotAfter.Equal(fixedNow.AddDate(0, 0, 365)))

	// Random, non-zero serial.
	assert.Positive(t, cert.SerialNumber.Sign())

	// PEM form round-trips.
	parsed, err := pki.LoadCertificatePEM(ca.PEM())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(parsed.Raw, ca.DER))
}

func TestSelfSign_RecordsSerialInLedger(t *testing.T) {
	ledger := memory.NewLedger()
	a := pki.NewAuthority(pki.WithLedger(ledger), pki.WithRunID("run-42"), pki.WithClock(fixedClock))
	kp := newKey(t)

	ca, err := a.SelfSign(kp, caName(t), 365)
	require.NoError(t, err)

	authority := pki.AuthorityID(t, kp)
	rec, err := ledger.Get(authority, ca.Cert.SerialNumber.Text(16))
	require.NoError(t, err)
	assert.Equal(t, storage.KindCA, rec.Kind)
	assert.Equal(t, "run-42", rec.RunID)
	assert.Equal(t, caName(t).String(), rec.Subject)
	assert.Equal(t, "run-42", a.RunID())
	assert.Same(t, ledger, a.Ledger())
}

func TestSelfSign_RedrawsCollidingSerial(t *testing.T) {
	x := bytes.Repeat([]byte{0x11}, 16)
	y := bytes.Repeat([]byte{0x22}, 16)
	src := bytes.NewReader(bytes.Join([][]byte{x, x, y}, nil))
	a := pki.NewAuthority(pki.WithSerialSource(src))
	kp := newKey(t)

	first, err := a.SelfSign(kp, caName(t), 365)
	require.NoError(t, err)
	second, err := a.SelfSign(kp, caName(t), 365)
	require.NoError(t, err)

	assert.Equal(t, "11111111111111111111111111111111", first.Cert.SerialNumber.Text(16))
	assert.Equal(t, "22222222222222222222222222222222", second.Cert.SerialNumber.Text(16))
}

func TestSelfSign_SerialExhausted(t *testing.T) {
	x := bytes.Repeat([]byte{0x33}, 16)
	src := bytes.NewReader(bytes.Repeat(x, 4))
	a := pki.NewAuthority(pki.WithSerialSource(src))
	kp := newKey(t)

	_, err := a.SelfSign(kp, caName(t), 365)
	require.NoError(t, err)

	_, err = a.SelfSign(kp, caName(t), 365)
	assert.ErrorIs(t, err, pki.ErrSigning)
	assert.ErrorIs(t, err, pki.ErrSerialExhausted)
}

func TestSelfSign_InvalidInputs(t *testing.T) {
	a := pki.NewAuthority()
	kp := newKey(t)

	_, err := a.SelfSign(nil, caName(t), 365)
	assert.ErrorIs(t, err, pki.ErrSigning)

	_, err = a.SelfSign(kp, pki.DistinguishedName{}, 365)
	assert.ErrorIs(t, err, pki.ErrSigning)
	assert.ErrorIs(t, err, pki.ErrEmptyName)

	_, err = a.SelfSign(kp, caName(t), 0)
	assert.ErrorIs(t, err, pki.ErrSigning)
	assert.ErrorIs(t, err, pki.ErrInvalidValidity)
}

type failingLedger struct{}

func (failingLedger) Reserve(string, *storage.IssuanceRecord) error {
	return assert.AnError
}

func (failingLedger) Get(string, string) (*storage.IssuanceRecord, error) {
	return nil, storage.ErrNotFound
}

func (failingLedger) List(string) ([]*storage.IssuanceRecord, error) {
	return nil, nil
}

func TestSelfSign_LedgerFailureIsStorageError(t *testing.T) {
	a := pki.NewAuthority(pki.WithLedger(failingLedger{}))
	_, err := a.SelfSign(newKey(t), caName(t), 365)
	assert.ErrorIs(t, err, pki.ErrStorage)
	assert.NotErrorIs(t, err, pki.ErrSigning)
}
